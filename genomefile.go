package stratify

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// loadChunkSize bounds how much we ask the OS for in a single read when
// slurping a genome file. Reads shorter than the requested size are normal
// and handled by continuing the loop.
const loadChunkSize = 1 << 20

var (
	ErrTruncatedRead = errors.New("unexpected EOF")
)

// genomeLength returns the byte size of the file at path. Unlike a
// 0-on-failure sentinel, an unreadable file and an empty file are
// distinguishable: the former returns a non-nil error.
func genomeLength(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return fi.Size(), nil
}

// loadGenome reads exactly length bytes from the file at path into a new
// buffer. It fails with ErrTruncatedRead (wrapped) if the file ends before
// length bytes have been read.
func loadGenome(path string, length int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	var total int64
	for total < length {
		want := length - total
		if want > loadChunkSize {
			want = loadChunkSize
		}
		n, err := f.Read(buf[total : total+want])
		total += int64(n)
		if err == io.EOF || (n == 0 && err == nil) {
			return nil, fmt.Errorf("read %s: %w after %d of %d bytes", path, ErrTruncatedRead, total, length)
		} else if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return buf, nil
}

// genomeDigest returns a short hex form of the blake2b-256 digest of a
// genome buffer, for provenance logging and duplicate detection.
func genomeDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}
