package ingress

import (
	"encoding/hex"
	"testing"
)

func TestDecodeHexSignatureAcceptsBareHex(t *testing.T) {
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	got, err := decodeHexSignature(hex.EncodeToString(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
}

func TestDecodeHexSignatureStripsAlgorithmPrefix(t *testing.T) {
	want := []byte{0x01, 0x02, 0x03}
	got, err := decodeHexSignature("sha256=" + hex.EncodeToString(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
}

func TestDecodeHexSignatureRejectsInvalidHex(t *testing.T) {
	if _, err := decodeHexSignature("not-hex!!"); err == nil {
		t.Fatal("expected error for invalid hex input")
	}
}
