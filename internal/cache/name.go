package cache

import (
	"crypto/md5" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
)

// NameFor derives the content-addressed cache name spec.md describes as
// "typically MD5-of-bytes plus extension". ext may be empty.
func NameFor(data []byte, ext string) string {
	sum := md5.Sum(data) //nolint:gosec
	name := hex.EncodeToString(sum[:])
	if ext != "" {
		name += "." + ext
	}
	return name
}
