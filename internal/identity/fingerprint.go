package identity

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint derives the stable content identity of an article from its
// primary text (title or full text) and secondary text (link). The result is
// a 32-char lowercase hex MD5 digest of the UTF-8 concatenation.
func Fingerprint(primary, secondary string) string {
	sum := md5.Sum([]byte(primary + secondary))
	return hex.EncodeToString(sum[:])
}
