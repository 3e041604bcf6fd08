package jwt

import (
	"strings"
	"testing"
	"time"
)

func testIssuer() *Issuer {
	i := NewIssuer("custodia-test", []byte("0123456789abcdef0123456789abcdef"))
	i.AccessTTL = 15 * time.Minute
	return i
}

func TestIssueValidate_RoundTrip(t *testing.T) {
	i := testIssuer()

	raw, exp, err := i.Issue(KindAccess, "user-123")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("exp en el pasado: %v", exp)
	}

	sub, err := i.Validate(KindAccess, raw)
	if err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	if sub != "user-123" {
		t.Fatalf("sub mismatch: got %q", sub)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	i := testIssuer()

	raw, _, err := i.Issue(KindAccess, "user-123")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	// Adelantar el reloj más allá del TTL + leeway (30s)
	i.Now = func() time.Time {
		return time.Now().Add(i.AccessTTL + time.Minute)
	}

	if _, err := i.Validate(KindAccess, raw); err != ErrTokenExpired {
		t.Fatalf("esperaba ErrTokenExpired, got %v", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	i := testIssuer()

	raw, _, err := i.Issue(KindAccess, "user-123")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	// Corromper un byte del payload (segunda sección del JWT)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("jwt malformado: %q", raw)
	}
	b := []byte(parts[1])
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	parts[1] = string(b)
	tampered := strings.Join(parts, ".")

	if _, err := i.Validate(KindAccess, tampered); err != ErrTokenInvalid {
		t.Fatalf("esperaba ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_WrongKind(t *testing.T) {
	i := testIssuer()

	// Un reset token jamás pasa como access token
	raw, _, err := i.Issue(KindReset, "user-123")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if _, err := i.Validate(KindAccess, raw); err != ErrTokenInvalid {
		t.Fatalf("esperaba ErrTokenInvalid por tipo, got %v", err)
	}
	if _, err := i.Validate(KindReset, raw); err != nil {
		t.Fatalf("Validate reset err: %v", err)
	}
}

func TestValidate_WrongIssuer(t *testing.T) {
	other := NewIssuer("otro-servicio", []byte("0123456789abcdef0123456789abcdef"))
	raw, _, err := other.Issue(KindAccess, "user-123")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	i := testIssuer()
	if _, err := i.Validate(KindAccess, raw); err != ErrTokenInvalid {
		t.Fatalf("esperaba ErrTokenInvalid por iss, got %v", err)
	}
}
