package media

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
)

// HashReader consumes r and returns the lowercase hex SHA-1 of its
// contents along with the byte count.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha1.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
