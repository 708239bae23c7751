package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"main/internal/schema"
)

// Record is one decoded WAL entry.
type Record struct {
	Header  schema.EventHeader
	Payload []byte
}

// Reader decodes records sequentially from a single WAL segment and
// verifies each checksum. Payload slices returned by Next are only valid
// until the following call.
type Reader struct {
	file    *os.File
	buf     *bufio.Reader
	header  [recordHeaderSize]byte
	payload []byte
	trailer [recordChecksumSize]byte
}

// OpenReader opens one WAL segment for sequential reads.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file: file,
		buf:  bufio.NewReaderSize(file, defaultBufferSize),
	}, nil
}

// Next returns the next record, or io.EOF at the end of the segment. A
// record truncated mid-write reads as io.ErrUnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.buf, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	header, payloadLen, err := decodeRecordHeader(r.header[:])
	if err != nil {
		return Record{}, err
	}
	if cap(r.payload) < int(payloadLen) {
		r.payload = make([]byte, payloadLen)
	}
	r.payload = r.payload[:payloadLen]
	if payloadLen > 0 {
		if _, err := io.ReadFull(r.buf, r.payload); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.ErrUnexpectedEOF
			}
			return Record{}, err
		}
	}
	if _, err := io.ReadFull(r.buf, r.trailer[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	if binary.LittleEndian.Uint32(r.trailer[:]) != checksum(r.header[:], r.payload) {
		return Record{}, ErrChecksumMismatch
	}
	return Record{Header: header, Payload: r.payload}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
