package wallet

import (
	"bytes"
	"testing"
)

func TestKeypairRoundTrip(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	restored, err := FromEncoded(kp.Encode())
	if err != nil {
		t.Fatalf("FromEncoded: %v", err)
	}
	if restored.PublicKey() != kp.PublicKey() {
		t.Errorf("public key changed across encode/decode: %s vs %s",
			kp.PublicKey(), restored.PublicKey())
	}

	msg := []byte("transaction message")
	sig, err := restored.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !kp.Verify(msg, sig) {
		t.Error("signature from restored key did not verify")
	}
}

func TestFromSeedRejectsBadLength(t *testing.T) {
	if _, err := FromSeed(make([]byte, 16)); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := FromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if a.PublicKey() != b.PublicKey() {
		t.Error("same seed produced different public keys")
	}
}

func TestBase58Encode(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte{}, ""},
		{[]byte{0}, "1"},
		{[]byte{0, 0, 1}, "112"},
		{[]byte("hello"), "Cn8eVZg"},
	}
	for _, tc := range cases {
		if got := base58Encode(tc.in); got != tc.want {
			t.Errorf("base58Encode(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
