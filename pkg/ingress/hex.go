package ingress

import (
	"encoding/hex"
	"strings"
)

// decodeHexSignature accepts either a bare hex digest or a prefixed one
// (e.g. "sha256=<hex>", the convention several webhook providers use).
func decodeHexSignature(raw string) ([]byte, error) {
	if idx := strings.IndexByte(raw, '='); idx != -1 && idx < len(raw)-1 {
		raw = raw[idx+1:]
	}
	return hex.DecodeString(raw)
}
