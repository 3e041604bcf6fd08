package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/dropDatabas3/custodia/internal/audit"
	"github.com/dropDatabas3/custodia/internal/cache"
	"github.com/dropDatabas3/custodia/internal/domain/repository"
	jwtx "github.com/dropDatabas3/custodia/internal/jwt"
	"github.com/dropDatabas3/custodia/internal/observability/logger"
	"github.com/dropDatabas3/custodia/internal/security/password"
	tokens "github.com/dropDatabas3/custodia/internal/security/token"
)

func resetCodeKey(userID string) string {
	return "reset:code:" + userID
}

// RequestResetCode genera un código numérico de un solo uso, lo guarda
// hasheado con TTL y lo envía por email. El código nunca se persiste en
// claro.
func (s *Service) RequestResetCode(ctx context.Context, username, ip, requestID string) error {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return ErrMissingFields
	}

	if s.RateEnabled {
		res, err := s.ForgotLimiter.Allow(ctx, ip)
		if err != nil {
			if gerr := s.gateErr(ctx, "limiter.forgot", err); gerr != nil {
				return gerr
			}
		} else if !res.Allowed {
			s.Metrics.RateLimited("forgot")
			return ErrRateLimited.WithRetryAfter(res.RetryAfter)
		}
	}

	u, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrUserNotFound
		}
		return Infra("users.get", err)
	}

	digits := s.CodeDigits
	if digits <= 0 {
		digits = 6
	}
	code, err := tokens.GenerateNumericCode(digits)
	if err != nil {
		return Infra("reset.code", err)
	}
	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := s.Codes.Set(ctx, resetCodeKey(u.ID), tokens.SHA256Base64URL(code), ttl); err != nil {
		return Infra("reset.store", err)
	}

	if err := s.Mail.SendResetCode(ctx, u.Email, code); err != nil {
		// El código ya quedó en el store; sin email no sirve de nada.
		if derr := s.Codes.Delete(ctx, resetCodeKey(u.ID)); derr != nil {
			logger.From(ctx).Warn("no se pudo limpiar el código de reset", logger.Err(derr))
		}
		return Infra("reset.mail", err)
	}

	s.emit(ctx, audit.Event{
		Event:     "auth.reset.request",
		Result:    audit.ResultSuccess,
		ActorID:   u.ID,
		Target:    username,
		IP:        ip,
		RequestID: requestID,
	})
	return nil
}

// VerifyResetCode valida el código emitido y lo canjea por un reset token
// de corto TTL y propósito único. El código se consume al primer acierto.
func (s *Service) VerifyResetCode(ctx context.Context, username, code, ip, requestID string) (string, time.Time, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || code == "" {
		return "", time.Time{}, ErrMissingFields
	}

	if s.RateEnabled {
		res, err := s.ForgotLimiter.Allow(ctx, ip)
		if err != nil {
			if gerr := s.gateErr(ctx, "limiter.forgot", err); gerr != nil {
				return "", time.Time{}, gerr
			}
		} else if !res.Allowed {
			s.Metrics.RateLimited("forgot")
			return "", time.Time{}, ErrRateLimited.WithRetryAfter(res.RetryAfter)
		}
	}

	u, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", time.Time{}, ErrUserNotFound
		}
		return "", time.Time{}, Infra("users.get", err)
	}

	stored, err := s.Codes.Get(ctx, resetCodeKey(u.ID))
	if err != nil {
		if cache.IsNotFound(err) {
			return "", time.Time{}, ErrCodeExpired
		}
		return "", time.Time{}, Infra("reset.load", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(tokens.SHA256Base64URL(code))) != 1 {
		s.emit(ctx, audit.Event{
			Event:     "auth.reset.verify",
			Result:    audit.ResultFail,
			Code:      ErrInvalidCode.Code,
			ActorID:   u.ID,
			Target:    username,
			IP:        ip,
			RequestID: requestID,
		})
		return "", time.Time{}, ErrInvalidCode
	}

	if err := s.Codes.Delete(ctx, resetCodeKey(u.ID)); err != nil {
		logger.From(ctx).Warn("no se pudo consumir el código de reset", logger.Err(err))
	}

	reset, exp, err := s.Tokens.Issue(jwtx.KindReset, u.ID)
	if err != nil {
		return "", time.Time{}, Infra("tokens.reset", err)
	}
	s.emit(ctx, audit.Event{
		Event:     "auth.reset.verify",
		Result:    audit.ResultSuccess,
		ActorID:   u.ID,
		Target:    username,
		IP:        ip,
		RequestID: requestID,
	})
	return reset, exp, nil
}

// ResetPassword consume el reset token, aplica la nueva contraseña y
// re-emite la sesión completa.
func (s *Service) ResetPassword(ctx context.Context, resetRaw, newPassword, ip, requestID string) (*LoginResult, error) {
	u, err := s.resolveSubject(ctx, jwtx.KindReset, resetRaw)
	if err != nil {
		return nil, err
	}
	if err := password.CheckPolicy(newPassword); err != nil {
		return nil, ErrWeakPassword
	}
	hash, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return nil, Infra("password.hash", err)
	}
	if err := s.Users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return nil, Infra("users.update_password", err)
	}
	u.MustChangePassword = false

	s.emit(ctx, audit.Event{
		Event:     "auth.reset.apply",
		Result:    audit.ResultSuccess,
		ActorID:   u.ID,
		Target:    u.Username,
		IP:        ip,
		RequestID: requestID,
	})
	return s.issueSession(ctx, u)
}
