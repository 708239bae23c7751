package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const (
	PositionChangedPayloadSize = 28
	AccountStatePayloadSize    = 40
)

// EncodePositionChanged serializes a position change into a fixed-size payload.
func EncodePositionChanged(dst []byte, pos schema.PositionChanged) []byte {
	if cap(dst) < PositionChangedPayloadSize {
		dst = make([]byte, PositionChangedPayloadSize)
	} else {
		dst = dst[:PositionChangedPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(pos.AccountID))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(pos.InstrumentID))
	binary.LittleEndian.PutUint16(dst[8:10], pos.Flags)
	binary.LittleEndian.PutUint16(dst[10:12], pos.Reserved)
	binary.LittleEndian.PutUint64(dst[12:20], uint64(pos.NetQty))
	binary.LittleEndian.PutUint64(dst[20:28], uint64(pos.AvgPrice))

	return dst
}

// DecodePositionChanged parses a fixed-size position change payload.
func DecodePositionChanged(src []byte) (schema.PositionChanged, bool) {
	if len(src) < PositionChangedPayloadSize {
		return schema.PositionChanged{}, false
	}
	return schema.PositionChanged{
		AccountID:    schema.AccountID(binary.LittleEndian.Uint32(src[0:4])),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[4:8])),
		Flags:        binary.LittleEndian.Uint16(src[8:10]),
		Reserved:     binary.LittleEndian.Uint16(src[10:12]),
		NetQty:       schema.Quantity(int64(binary.LittleEndian.Uint64(src[12:20]))),
		AvgPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[20:28]))),
	}, true
}

// EncodeAccountState serializes an account state into a fixed-size payload.
func EncodeAccountState(dst []byte, acc schema.AccountState) []byte {
	if cap(dst) < AccountStatePayloadSize {
		dst = make([]byte, AccountStatePayloadSize)
	} else {
		dst = dst[:AccountStatePayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(acc.AccountID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(acc.VenueID))
	binary.LittleEndian.PutUint16(dst[6:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(acc.Balance))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(acc.MarginUsed))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(acc.RealizedPnL))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(acc.UnrealizedPnL))

	return dst
}

// DecodeAccountState parses a fixed-size account state payload.
func DecodeAccountState(src []byte) (schema.AccountState, bool) {
	if len(src) < AccountStatePayloadSize {
		return schema.AccountState{}, false
	}
	return schema.AccountState{
		AccountID:     schema.AccountID(binary.LittleEndian.Uint32(src[0:4])),
		VenueID:       schema.VenueID(binary.LittleEndian.Uint16(src[4:6])),
		Balance:       schema.Notional(int64(binary.LittleEndian.Uint64(src[8:16]))),
		MarginUsed:    schema.Notional(int64(binary.LittleEndian.Uint64(src[16:24]))),
		RealizedPnL:   schema.Notional(int64(binary.LittleEndian.Uint64(src[24:32]))),
		UnrealizedPnL: schema.Notional(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}
