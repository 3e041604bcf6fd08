package password

import (
	"fmt"
	"unicode"
)

// CheckPolicy valida la política mínima de contraseñas usada en los flujos
// de reset y onboarding: largo mínimo 10 y al menos tres clases de
// caracteres (minúscula, mayúscula, dígito, símbolo).
func CheckPolicy(plain string) error {
	if len(plain) < 10 {
		return fmt.Errorf("password: mínimo 10 caracteres")
	}
	var lower, upper, digit, symbol bool
	for _, r := range plain {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return fmt.Errorf("password: se requieren al menos 3 clases de caracteres")
	}
	return nil
}
