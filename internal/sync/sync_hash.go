package sync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

const hashBufferSize = 32 * 1024

var hashBuffers = sync.Pool{
	New: func() any {
		buf := make([]byte, hashBufferSize)
		return &buf
	},
}

// HashReader streams r through MD5 using a fixed-size buffer and returns the
// lowercase hex digest and the number of bytes read. MD5 matches the ETag that
// S3-compatible stores report for single-part objects.
func HashReader(r io.Reader) (string, int64, error) {
	bufp := hashBuffers.Get().(*[]byte)
	defer hashBuffers.Put(bufp)

	h := md5.New()
	// hide WriterTo/ReaderFrom so CopyBuffer actually uses our buffer
	n, err := io.CopyBuffer(struct{ io.Writer }{h}, struct{ io.Reader }{r}, *bufp)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile returns the digest and size of the file at path.
func HashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	digest, n, err := HashReader(file)
	if err != nil {
		return "", n, fmt.Errorf("hash %s: %w", path, err)
	}
	return digest, n, nil
}
