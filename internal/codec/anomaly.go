package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const AnomalyPayloadSize = 24

// EncodeAnomaly serializes an anomaly into a fixed-size payload.
func EncodeAnomaly(dst []byte, anomaly schema.Anomaly) []byte {
	if cap(dst) < AnomalyPayloadSize {
		dst = make([]byte, AnomalyPayloadSize)
	} else {
		dst = dst[:AnomalyPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(anomaly.Kind))
	binary.LittleEndian.PutUint16(dst[2:4], anomaly.Reserved)
	binary.LittleEndian.PutUint32(dst[4:8], uint32(anomaly.InstrumentID))
	binary.LittleEndian.PutUint64(dst[8:16], anomaly.OrderID)
	binary.LittleEndian.PutUint64(dst[16:24], anomaly.Seq)

	return dst
}

// DecodeAnomaly parses a fixed-size anomaly payload.
func DecodeAnomaly(src []byte) (schema.Anomaly, bool) {
	if len(src) < AnomalyPayloadSize {
		return schema.Anomaly{}, false
	}
	return schema.Anomaly{
		Kind:         schema.AnomalyKind(binary.LittleEndian.Uint16(src[0:2])),
		Reserved:     binary.LittleEndian.Uint16(src[2:4]),
		InstrumentID: schema.InstrumentID(binary.LittleEndian.Uint32(src[4:8])),
		OrderID:      binary.LittleEndian.Uint64(src[8:16]),
		Seq:          binary.LittleEndian.Uint64(src[16:24]),
	}, true
}
