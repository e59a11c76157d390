package expr

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a stable 64-bit hash of the tree's printed form. Two trees that
// print identically share a fingerprint.
func Fingerprint(n Node) uint64 {
	if n == nil {
		return 0
	}
	d := xxhash.New()
	_, _ = d.WriteString(n.Kind().String())
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(n.String())
	return d.Sum64()
}

// FingerprintHex renders Fingerprint as a fixed-width hexadecimal string.
func FingerprintHex(n Node) string {
	s := strconv.FormatUint(Fingerprint(n), 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
