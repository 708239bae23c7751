package recorder

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListSegments returns the WAL segment paths under dir matching the file
// prefix, sorted by name. Segment names embed the open timestamp and a
// monotonic counter, so lexical order is write order.
func ListSegments(dir, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = defaultFilePrefix
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".wal") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Iterator walks the records of a segment list in order. Records returned
// by Next carry payload copies that remain valid after the next call, so
// callers may buffer them in a merge queue.
type Iterator struct {
	paths   []string
	index   int
	reader  *Reader
	err     error
	started bool
}

// NewIterator creates an iterator over the given segment paths.
func NewIterator(paths []string) *Iterator {
	return &Iterator{paths: paths}
}

// OpenIterator lists segments in dir with the given prefix and returns an
// iterator over all of them.
func OpenIterator(dir, prefix string) (*Iterator, error) {
	paths, err := ListSegments(dir, prefix)
	if err != nil {
		return nil, err
	}
	return NewIterator(paths), nil
}

// Next returns the next record across all segments, or io.EOF after the
// last one. Any decode error ends iteration.
func (it *Iterator) Next() (Record, error) {
	if it.err != nil {
		return Record{}, it.err
	}
	for {
		if it.reader == nil {
			if it.index >= len(it.paths) {
				it.err = io.EOF
				return Record{}, io.EOF
			}
			reader, err := OpenReader(it.paths[it.index])
			if err != nil {
				it.err = err
				return Record{}, err
			}
			it.reader = reader
			it.index++
		}
		record, err := it.reader.Next()
		if err == nil {
			payload := make([]byte, len(record.Payload))
			copy(payload, record.Payload)
			record.Payload = payload
			return record, nil
		}
		closeErr := it.reader.Close()
		it.reader = nil
		if err != io.EOF {
			it.err = err
			return Record{}, err
		}
		if closeErr != nil {
			it.err = closeErr
			return Record{}, closeErr
		}
	}
}

// Close releases the currently open segment, if any.
func (it *Iterator) Close() error {
	if it.reader != nil {
		err := it.reader.Close()
		it.reader = nil
		return err
	}
	return nil
}
