package repository

import (
	"context"
	"time"
)

// User representa una cuenta del sistema. Este core solo la lee; las
// mutaciones administrativas viven fuera, salvo el bookkeeping de login.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string

	// Active=false ⇒ cuenta inactiva (USER_INACTIVE).
	Active bool

	// Locked ⇒ bloqueo administrativo persistente (ACCOUNT_LOCKED),
	// distinto del bloqueo temporal del BruteForceGuard.
	Locked bool

	// DeactivatedAt en el pasado ⇒ cuenta expirada (ACCOUNT_EXPIRED).
	DeactivatedAt *time.Time

	// Flags de onboarding: restringen operaciones sin invalidar tokens.
	MustChangePassword bool
	TermsAccepted      bool

	FailedLogins int
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// Expired indica si la cuenta pasó su fecha de desactivación.
func (u *User) Expired(now time.Time) bool {
	return u.DeactivatedAt != nil && u.DeactivatedAt.Before(now)
}

// NeedsOnboarding indica si el usuario está en el sub-estado de onboarding.
func (u *User) NeedsOnboarding() bool {
	return u.MustChangePassword || !u.TermsAccepted
}

// UserRepository define las lecturas de cuentas y el bookkeeping de login.
type UserRepository interface {
	// GetByUsername busca un usuario por username (case-insensitive).
	// Retorna ErrNotFound si no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID busca un usuario por ID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, userID string) (*User, error)

	// RecordLoginAttempt actualiza el bookkeeping de login del usuario:
	// success=true resetea failed_logins y marca last_login_at;
	// success=false incrementa failed_logins.
	RecordLoginAttempt(ctx context.Context, userID string, success bool, at time.Time) error

	// UpdatePasswordHash reemplaza el hash y baja must_change_password.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetTermsAccepted marca los términos como aceptados.
	SetTermsAccepted(ctx context.Context, userID string, at time.Time) error
}
