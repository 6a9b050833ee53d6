package tokens

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestInviteToken_URLSafeAndUnique(t *testing.T) {
	g := NewRandom()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tok, err := g.InviteToken()
		if err != nil {
			t.Fatalf("InviteToken() error = %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("token %q is not raw base64url: %v", tok, err)
		}
		if len(raw) != TokenBytes {
			t.Fatalf("expected %d bytes of entropy, got %d", TokenBytes, len(raw))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestInviteToken_ShortReader(t *testing.T) {
	g := &Random{reader: bytes.NewReader([]byte{1, 2, 3})}
	if _, err := g.InviteToken(); err == nil {
		t.Error("expected error from exhausted reader")
	}
}

func TestCode(t *testing.T) {
	g := NewRandom()
	for _, digits := range []int{4, 6, 8} {
		for i := 0; i < 50; i++ {
			code, err := g.Code(digits)
			if err != nil {
				t.Fatalf("Code(%d) error = %v", digits, err)
			}
			if len(code) != digits {
				t.Fatalf("Code(%d) = %q, wrong length", digits, code)
			}
			if strings.Trim(code, "0123456789") != "" {
				t.Fatalf("Code(%d) = %q, not numeric", digits, code)
			}
		}
	}
}

func TestCode_KeepsLeadingZeros(t *testing.T) {
	// An all-zero reader makes rand.Int return 0.
	g := &Random{reader: bytes.NewReader(make([]byte, 64))}
	code, err := g.Code(6)
	if err != nil {
		t.Fatalf("Code() error = %v", err)
	}
	if code != "000000" {
		t.Errorf("expected zero padded code, got %q", code)
	}
}

func TestCode_RejectsBadLength(t *testing.T) {
	g := NewRandom()
	for _, d := range []int{0, 3, 13} {
		if _, err := g.Code(d); err == nil {
			t.Errorf("Code(%d) should fail", d)
		}
	}
}

func TestBcrypt(t *testing.T) {
	h, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt() error = %v", err)
	}

	hash, err := h.Hash("123456")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "123456" {
		t.Fatal("hash must not equal the code")
	}

	tests := []struct {
		name string
		hash string
		code string
		want bool
	}{
		{"match", hash, "123456", true},
		{"mismatch", hash, "654321", false},
		{"empty hash", "", "123456", false},
		{"garbage hash", "not-a-hash", "123456", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Matches(tt.hash, tt.code); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewBcrypt_Cost(t *testing.T) {
	if _, err := NewBcrypt(0); err != nil {
		t.Errorf("cost 0 should select the default: %v", err)
	}
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Error("expected error for cost above max")
	}
}
