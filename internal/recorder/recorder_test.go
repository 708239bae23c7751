package recorder

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func writeRecords(t *testing.T, cfg Config, count int) {
	t.Helper()
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	for i := 1; i <= count; i++ {
		header := schema.NewHeader(schema.EventMarketData, 1, uint64(i), int64(i*1000), int64(i*1000)+5)
		header.TraceID = uint64(i)
		payload := []byte{byte(i), byte(i >> 8), 0xAB}
		require.NoError(t, w.TryAppend(header, payload))
	}
	require.NoError(t, w.Close())
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, DefaultConfig(dir), 3)

	paths, err := ListSegments(dir, "")
	require.NoError(t, err)
	require.Len(t, paths, 1)

	r, err := OpenReader(paths[0])
	require.NoError(t, err)
	defer r.Close()

	for i := 1; i <= 3; i++ {
		record, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, schema.EventMarketData, record.Header.Type)
		assert.Equal(t, uint64(i), record.Header.Seq)
		assert.Equal(t, int64(i*1000), record.Header.TsEvent)
		assert.Equal(t, uint64(i), record.Header.TraceID)
		assert.Equal(t, []byte{byte(i), byte(i >> 8), 0xAB}, record.Payload)
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWriterRejectsBeforeStartAndAfterClose(t *testing.T) {
	w, err := NewWriter(DefaultConfig(t.TempDir()))
	require.NoError(t, err)

	header := schema.NewHeader(schema.EventTime, 0, 1, 1, 1)
	assert.ErrorIs(t, w.TryAppend(header, nil), ErrNotStarted)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.TryAppend(header, nil), ErrClosed)
}

func TestSegmentRotationBySize(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	// Room for exactly one record per segment.
	cfg.SegmentMaxBytes = int64(recordHeaderSize + 3 + recordChecksumSize)
	cfg.SegmentMaxDuration = 0
	writeRecords(t, cfg, 3)

	paths, err := ListSegments(dir, "")
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestIteratorWalksSegmentsInOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SegmentMaxBytes = int64(recordHeaderSize + 3 + recordChecksumSize)
	cfg.SegmentMaxDuration = 0
	writeRecords(t, cfg, 5)

	it, err := OpenIterator(dir, "")
	require.NoError(t, err)
	defer it.Close()

	var seqs []uint64
	var payloads [][]byte
	for {
		record, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seqs = append(seqs, record.Header.Seq)
		payloads = append(payloads, record.Payload)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
	// Iterator payloads are copies and stay valid after subsequent reads.
	assert.Equal(t, []byte{1, 0, 0xAB}, payloads[0])
}

func TestReaderDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, DefaultConfig(dir), 1)

	paths, err := ListSegments(dir, "")
	require.NoError(t, err)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	data[recordHeaderSize] ^= 0xFF // first payload byte
	require.NoError(t, os.WriteFile(paths[0], data, 0o644))

	r, err := OpenReader(paths[0])
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReaderDetectsTruncation(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, DefaultConfig(dir), 1)

	paths, err := ListSegments(dir, "")
	require.NoError(t, err)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths[0], data[:len(data)-2], 0o644))

	r, err := OpenReader(paths[0])
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReaderRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, DefaultConfig(dir), 1)

	paths, err := ListSegments(dir, "")
	require.NoError(t, err)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	data[0] = 'X'
	require.NoError(t, os.WriteFile(paths[0], data, 0o644))

	r, err := OpenReader(paths[0])
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestListSegmentsFiltersPrefix(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.FilePrefix = "md"
	writeRecords(t, cfg, 1)
	require.NoError(t, os.WriteFile(dir+"/other-20250101T000000-000001.wal", nil, 0o644))
	require.NoError(t, os.WriteFile(dir+"/md-notes.txt", nil, 0o644))

	paths, err := ListSegments(dir, "md")
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.withDefaults().Validate())
	assert.NoError(t, DefaultConfig(t.TempDir()).Validate())

	cfg := DefaultConfig(t.TempDir())
	cfg.FlushInterval = -1
	assert.Error(t, cfg.Validate())
}
