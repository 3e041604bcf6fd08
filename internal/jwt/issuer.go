package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// TokenKind identifica el propósito de un token de sesión. La validación es
// estricta por tipo: un reset token nunca pasa como access token.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
	KindReset   TokenKind = "reset"
)

// Errores terminales de validación. Cualquier fallo de firma/formato es
// ErrTokenInvalid; solo la expiración se distingue como ErrTokenExpired.
var (
	ErrTokenInvalid = errors.New("token_invalid")
	ErrTokenExpired = errors.New("token_expired")
)

// Issuer firma y valida tokens de sesión con un secreto HMAC compartido.
// Validación stateless: firma + reloj, sin estado server-side.
type Issuer struct {
	Iss        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Now permite inyectar el reloj en tests. Nil = time.Now.
	Now func() time.Time

	secret []byte
}

func NewIssuer(iss string, secret []byte) *Issuer {
	return &Issuer{
		Iss:        iss,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
		ResetTTL:   10 * time.Minute,
		secret:     secret,
	}
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Issuer) ttl(kind TokenKind) time.Duration {
	switch kind {
	case KindRefresh:
		return i.RefreshTTL
	case KindReset:
		return i.ResetTTL
	default:
		return i.AccessTTL
	}
}

// Issue firma un token del tipo dado para el subject. Devuelve el JWT
// firmado y su expiración.
func (i *Issuer) Issue(kind TokenKind, sub string) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl(kind))

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"use": string(kind),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate verifica firma, emisor, ventana temporal y tipo. Devuelve el
// subject. Un token de otro tipo falla con ErrTokenInvalid.
func (i *Issuer) Validate(kind TokenKind, raw string) (string, error) {
	tok, err := jwtv5.Parse(raw,
		func(t *jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithLeeway(30*time.Second),
		jwtv5.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if !tok.Valid {
		return "", ErrTokenInvalid
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", ErrTokenInvalid
	}
	if use, _ := claims["use"].(string); use != string(kind) {
		return "", ErrTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrTokenInvalid
	}
	return sub, nil
}
