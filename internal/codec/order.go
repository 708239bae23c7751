package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const (
	OrderIntentPayloadSize  = 52
	CancelIntentPayloadSize = 16
	OrderStatusPayloadSize  = 44
)

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, intent schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], intent.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], intent.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(intent.AccountID))
	binary.LittleEndian.PutUint32(dst[16:20], uint32(intent.InstrumentID))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(intent.Side))
	binary.LittleEndian.PutUint16(dst[22:24], uint16(intent.Type))
	binary.LittleEndian.PutUint16(dst[24:26], uint16(intent.TimeInForce))
	binary.LittleEndian.PutUint16(dst[26:28], intent.Flags)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(intent.Price))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(intent.Qty))
	binary.LittleEndian.PutUint64(dst[44:52], uint64(intent.ExpiresAt))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:   binary.LittleEndian.Uint32(src[8:12]),
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[12:16])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[16:20])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[20:22])),
		Type:         schema.OrderType(binary.LittleEndian.Uint16(src[22:24])),
		TimeInForce:  schema.TimeInForce(binary.LittleEndian.Uint16(src[24:26])),
		Flags:        binary.LittleEndian.Uint16(src[26:28]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[28:36]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[36:44]))),
		ExpiresAt:    int64(binary.LittleEndian.Uint64(src[44:52])),
	}, true
}

// EncodeCancelIntent serializes a cancel intent into a fixed-size payload.
func EncodeCancelIntent(dst []byte, cancel schema.CancelIntent) []byte {
	if cap(dst) < CancelIntentPayloadSize {
		dst = make([]byte, CancelIntentPayloadSize)
	} else {
		dst = dst[:CancelIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], cancel.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(cancel.InstrumentID))
	binary.LittleEndian.PutUint16(dst[12:14], cancel.Flags)
	binary.LittleEndian.PutUint16(dst[14:16], cancel.Reserved)

	return dst
}

// DecodeCancelIntent parses a fixed-size cancel intent payload.
func DecodeCancelIntent(src []byte) (schema.CancelIntent, bool) {
	if len(src) < CancelIntentPayloadSize {
		return schema.CancelIntent{}, false
	}
	return schema.CancelIntent{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		Flags:        binary.LittleEndian.Uint16(src[12:14]),
		Reserved:     binary.LittleEndian.Uint16(src[14:16]),
	}, true
}

// EncodeOrderStatus serializes an order status into a fixed-size payload.
func EncodeOrderStatus(dst []byte, status schema.OrderStatus) []byte {
	if cap(dst) < OrderStatusPayloadSize {
		dst = make([]byte, OrderStatusPayloadSize)
	} else {
		dst = dst[:OrderStatusPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], status.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(status.InstrumentID))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(status.Status))
	binary.LittleEndian.PutUint16(dst[14:16], uint16(status.Reason))
	binary.LittleEndian.PutUint16(dst[16:18], status.Flags)
	binary.LittleEndian.PutUint16(dst[18:20], status.Reserved)
	binary.LittleEndian.PutUint64(dst[20:28], uint64(status.Price))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(status.Qty))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(status.LeavesQty))

	return dst
}

// DecodeOrderStatus parses a fixed-size order status payload.
func DecodeOrderStatus(src []byte) (schema.OrderStatus, bool) {
	if len(src) < OrderStatusPayloadSize {
		return schema.OrderStatus{}, false
	}
	return schema.OrderStatus{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		Status:       schema.OrderStatusCode(binary.LittleEndian.Uint16(src[12:14])),
		Reason:       schema.StatusReason(binary.LittleEndian.Uint16(src[14:16])),
		Flags:        binary.LittleEndian.Uint16(src[16:18]),
		Reserved:     binary.LittleEndian.Uint16(src[18:20]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[20:28]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[28:36]))),
		LeavesQty:    schema.Quantity(int64(binary.LittleEndian.Uint64(src[36:44]))),
	}, true
}
