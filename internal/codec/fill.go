package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const FillPayloadSize = 44

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, fill schema.Fill) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], fill.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(fill.InstrumentID))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(fill.AccountID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(fill.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(fill.Liquidity))
	binary.LittleEndian.PutUint64(dst[20:28], uint64(fill.Price))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(fill.Qty))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(fill.Fee))

	return dst
}

// DecodeFill parses a fixed-size fill payload.
func DecodeFill(src []byte) (schema.Fill, bool) {
	if len(src) < FillPayloadSize {
		return schema.Fill{}, false
	}
	return schema.Fill{
		OrderID:      binary.LittleEndian.Uint64(src[0:8]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[8:12])),
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[12:16])),
		Side:         schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Liquidity:    schema.LiquidityFlag(binary.LittleEndian.Uint16(src[18:20])),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[20:28]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[28:36]))),
		Fee:          schema.Fee(int64(binary.LittleEndian.Uint64(src[36:44]))),
	}, true
}
