package migration

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Checksum computes the content digest of an up body: strip a leading UTF-8
// BOM if present, normalize CRLF to LF, then hash with SHA-256. The result
// is a lowercase hex string, independent of name, version, path and down
// body - the same normalized bytes always produce the same checksum
// regardless of the editor or platform that produced the file.
func Checksum(upBody []byte) string {
	normalized := bytes.TrimPrefix(upBody, utf8BOM)
	normalized = bytes.ReplaceAll(normalized, []byte("\r\n"), []byte("\n"))

	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
