// Package fingerprint computes the stable alert identity used for
// deduplication (spec §3 "Fingerprint").
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Compute derives a fingerprint from alertName plus the sorted (key,value)
// label pairs. It is deterministic: identical inputs always produce the
// same digest, and any differing label changes the digest (spec §8
// "Fingerprint stability").
func Compute(alertName string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(alertName)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
