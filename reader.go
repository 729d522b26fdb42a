package pileq

import (
	"bytes"
	"io"
	"os"
)

// Stream caters for a generic reader type so ingestion can accept image
// bytes from either a local file or an in-memory buffer without the
// caller needing to know which. All that's required is Read and Seek,
// which both *os.File and *bytes.Reader implement.
type Stream interface {
	io.Reader
	io.Seeker
}

// OpenStream opens uri as a Stream. When inMemory is set, the entire
// file is read up front into a byte buffer (useful for small request
// payloads where a single syscall beats many small reads); otherwise
// the file handle itself is returned as the stream.
func OpenStream(uri string, inMemory bool) (Stream, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, err
	}
	if !inMemory {
		return f, nil
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}
