// Package auth implementa el orquestador de autenticación: secuencia los
// checks de rate limiting, la verificación de credenciales, la emisión de
// tokens y la auditoría. Es el único componente que habla con todos los
// demás.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/custodia/internal/audit"
	"github.com/dropDatabas3/custodia/internal/authz"
	"github.com/dropDatabas3/custodia/internal/cache"
	"github.com/dropDatabas3/custodia/internal/domain/repository"
	jwtx "github.com/dropDatabas3/custodia/internal/jwt"
	"github.com/dropDatabas3/custodia/internal/metrics"
	"github.com/dropDatabas3/custodia/internal/observability/logger"
	"github.com/dropDatabas3/custodia/internal/rate"
	"github.com/dropDatabas3/custodia/internal/security/password"
	tokens "github.com/dropDatabas3/custodia/internal/security/token"
)

// BruteForce es la vista del guard de lockout que usa el orquestador.
type BruteForce interface {
	RecordFailure(ctx context.Context, kind rate.KeyKind, key string) (time.Duration, error)
	ResetFailures(ctx context.Context, kind rate.KeyKind, key string) error
	IsBlocked(ctx context.Context, kind rate.KeyKind, key string) (bool, error)
	RemainingBlock(ctx context.Context, kind rate.KeyKind, key string) (time.Duration, error)
}

// Auditor recibe los eventos de auditoría. Fire-and-forget.
type Auditor interface {
	Emit(ctx context.Context, ev audit.Event)
}

// Mailer envía el código de reset. La entrega es un colaborador externo.
type Mailer interface {
	SendResetCode(ctx context.Context, to, code string) error
}

// Session es el set de tokens emitidos para una sesión.
type Session struct {
	Access         string    `json:"-"`
	Refresh        string    `json:"-"`
	CSRF           string    `json:"csrf_token"`
	AccessExpires  time.Time `json:"access_expires"`
	RefreshExpires time.Time `json:"refresh_expires"`
}

// Profile es la vista del usuario que acompaña una sesión.
type Profile struct {
	UserID       string           `json:"user_id"`
	Username     string           `json:"username"`
	Roles        []authz.RoleInfo `json:"roles"`
	Permissions  []string         `json:"permissions"`
	IsAdmin      bool             `json:"is_admin"`
	LandingRoute string           `json:"landing_route"`
	// Onboarding restringe qué operaciones tienen sentido, sin invalidar
	// los tokens: deriva de must_change_password / terms_accepted.
	Onboarding bool `json:"onboarding"`
}

// LoginResult agrupa sesión + perfil.
type LoginResult struct {
	Session Session
	Profile Profile
}

// LoginInput son los datos de un intento de login.
type LoginInput struct {
	Username string
	Password string
	IP       string
	// HasSession: el request ya trae un access token válido (cookie).
	HasSession bool
	RequestID  string
}

// OnboardingInput son los cambios del flujo de onboarding.
type OnboardingInput struct {
	NewPassword string
	AcceptTerms bool
}

// Service orquesta autenticación, tokens, rate limiting y auditoría.
type Service struct {
	Users    repository.UserRepository
	Resolver *authz.Resolver
	Tokens   *jwtx.Issuer

	LoginLimiter  rate.Limiter
	ForgotLimiter rate.Limiter
	Guard         BruteForce

	Audit   Auditor
	Codes   cache.Client
	Mail    Mailer
	Metrics *metrics.Metrics

	// RateEnabled apaga los gates de rate limiting (solo dev/test).
	RateEnabled bool
	// FailOpen: qué hacer si el store de contadores no responde.
	// false = fail-closed (error de infraestructura). Decisión explícita.
	FailOpen bool

	CodeTTL    time.Duration
	CodeDigits int
}

// gateErr decide el destino de un error del store de rate limiting según la
// política fail-open/fail-closed configurada.
func (s *Service) gateErr(ctx context.Context, op string, err error) error {
	if s.FailOpen {
		logger.From(ctx).Warn("rate store no disponible, continuando (fail-open)",
			logger.Op(op), logger.Err(err))
		return nil
	}
	return Infra(op, err)
}

func (s *Service) emit(ctx context.Context, ev audit.Event) {
	if s.Audit != nil {
		s.Audit.Emit(ctx, ev)
	}
}

// Login ejecuta el flujo completo de autenticación por contraseña.
// El orden de los checks es parte del contrato: los gates de rate limiting
// corren antes de cualquier lookup de credenciales.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.HasSession {
		return nil, ErrSessionActive
	}
	username := strings.TrimSpace(strings.ToLower(in.Username))
	if username == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	if s.RateEnabled {
		// 1. Bloqueo escalado de la IP de origen
		blocked, err := s.Guard.IsBlocked(ctx, rate.KeyIP, in.IP)
		if err != nil {
			if gerr := s.gateErr(ctx, "guard.ip", err); gerr != nil {
				return nil, gerr
			}
		} else if blocked {
			remaining, _ := s.Guard.RemainingBlock(ctx, rate.KeyIP, in.IP)
			s.auditLogin(ctx, in, "", audit.ResultFail, ErrIPBlocked.Code)
			s.Metrics.RateLimited("login.ip_block")
			return nil, ErrIPBlocked.WithRetryAfter(remaining)
		}

		// 2. Ventana deslizante por IP, antes de tocar la base
		res, err := s.LoginLimiter.Allow(ctx, in.IP)
		if err != nil {
			if gerr := s.gateErr(ctx, "limiter.login", err); gerr != nil {
				return nil, gerr
			}
		} else if !res.Allowed {
			s.auditLogin(ctx, in, "", audit.ResultFail, ErrRateLimited.Code)
			s.Metrics.RateLimited("login")
			return nil, ErrRateLimited.WithRetryAfter(res.RetryAfter)
		}
	}

	// 3. Lookup y estado de cuenta, en orden documentado
	u, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			s.auditLogin(ctx, in, "", audit.ResultFail, ErrUserNotFound.Code)
			s.Metrics.Login(ErrUserNotFound.Code)
			return nil, ErrUserNotFound
		}
		return nil, Infra("users.get", err)
	}
	if !u.Active {
		s.auditLogin(ctx, in, u.ID, audit.ResultFail, ErrUserInactive.Code)
		s.Metrics.Login(ErrUserInactive.Code)
		return nil, ErrUserInactive
	}
	if u.Locked {
		s.auditLogin(ctx, in, u.ID, audit.ResultFail, ErrAccountLocked.Code)
		s.Metrics.Login(ErrAccountLocked.Code)
		return nil, ErrAccountLocked
	}
	if s.RateEnabled {
		blocked, err := s.Guard.IsBlocked(ctx, rate.KeyUser, username)
		if err != nil {
			if gerr := s.gateErr(ctx, "guard.user", err); gerr != nil {
				return nil, gerr
			}
		} else if blocked {
			remaining, _ := s.Guard.RemainingBlock(ctx, rate.KeyUser, username)
			s.auditLogin(ctx, in, u.ID, audit.ResultFail, ErrAccountLocked.Code)
			s.Metrics.Login(ErrAccountLocked.Code)
			return nil, ErrAccountLocked.WithRetryAfter(remaining)
		}
	}
	if u.Expired(time.Now()) {
		s.auditLogin(ctx, in, u.ID, audit.ResultFail, ErrAccountExpired.Code)
		s.Metrics.Login(ErrAccountExpired.Code)
		return nil, ErrAccountExpired
	}

	// 4. Verificación de credencial
	if !password.Verify(in.Password, u.PasswordHash) {
		s.recordFailure(ctx, username, in.IP)
		if err := s.Users.RecordLoginAttempt(ctx, u.ID, false, time.Now().UTC()); err != nil {
			logger.From(ctx).Warn("login bookkeeping falló", logger.UserID(u.ID), logger.Err(err))
		}
		s.auditLogin(ctx, in, u.ID, audit.ResultFail, ErrInvalidCredentials.Code)
		s.Metrics.Login(ErrInvalidCredentials.Code)
		return nil, ErrInvalidCredentials
	}

	// 5. Éxito: se resetea solo el contador del usuario. El de la IP se
	// conserva a propósito como rastro forense del origen.
	if s.RateEnabled {
		if err := s.Guard.ResetFailures(ctx, rate.KeyUser, username); err != nil {
			logger.From(ctx).Warn("reset de contador falló", logger.Username(username), logger.Err(err))
		}
	}
	if err := s.Users.RecordLoginAttempt(ctx, u.ID, true, time.Now().UTC()); err != nil {
		logger.From(ctx).Warn("login bookkeeping falló", logger.UserID(u.ID), logger.Err(err))
	}

	result, err := s.issueSession(ctx, u)
	if err != nil {
		return nil, err
	}
	s.auditLogin(ctx, in, u.ID, audit.ResultSuccess, "")
	s.Metrics.Login("success")
	return result, nil
}

// recordFailure incrementa ambos contadores (IP y usuario) tras una
// credencial inválida.
func (s *Service) recordFailure(ctx context.Context, username, ip string) {
	if !s.RateEnabled {
		return
	}
	if d, err := s.Guard.RecordFailure(ctx, rate.KeyIP, ip); err != nil {
		logger.From(ctx).Warn("contador de IP falló", logger.Key(ip), logger.Err(err))
	} else if d > 0 {
		s.Metrics.Lockout("ip")
		logger.From(ctx).Info("bloqueo escalado de IP", logger.Key(ip), logger.Duration(d))
	}
	if d, err := s.Guard.RecordFailure(ctx, rate.KeyUser, username); err != nil {
		logger.From(ctx).Warn("contador de usuario falló", logger.Username(username), logger.Err(err))
	} else if d > 0 {
		s.Metrics.Lockout("user")
		logger.From(ctx).Info("bloqueo escalado de usuario", logger.Username(username), logger.Duration(d))
	}
}

func (s *Service) auditLogin(ctx context.Context, in LoginInput, actorID, result, code string) {
	s.emit(ctx, audit.Event{
		Event:     "auth.login",
		Result:    result,
		Code:      code,
		ActorID:   actorID,
		Target:    strings.TrimSpace(strings.ToLower(in.Username)),
		IP:        in.IP,
		RequestID: in.RequestID,
	})
}

// issueSession emite el set completo de tokens + perfil para un usuario ya
// autenticado.
func (s *Service) issueSession(ctx context.Context, u *repository.User) (*LoginResult, error) {
	access, accessExp, err := s.Tokens.Issue(jwtx.KindAccess, u.ID)
	if err != nil {
		return nil, Infra("tokens.access", err)
	}
	refresh, refreshExp, err := s.Tokens.Issue(jwtx.KindRefresh, u.ID)
	if err != nil {
		return nil, Infra("tokens.refresh", err)
	}
	csrf, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, Infra("tokens.csrf", err)
	}

	profile, err := s.buildProfile(ctx, u)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Session: Session{
			Access:         access,
			Refresh:        refresh,
			CSRF:           csrf,
			AccessExpires:  accessExp,
			RefreshExpires: refreshExp,
		},
		Profile: *profile,
	}, nil
}

func (s *Service) buildProfile(ctx context.Context, u *repository.User) (*Profile, error) {
	d, err := s.Resolver.Resolve(ctx, u.ID)
	if err != nil {
		return nil, Infra("authz.resolve", err)
	}
	return &Profile{
		UserID:       u.ID,
		Username:     u.Username,
		Roles:        d.Roles,
		Permissions:  d.PermissionList(),
		IsAdmin:      d.IsAdmin,
		LandingRoute: d.LandingRoute,
		Onboarding:   u.NeedsOnboarding(),
	}, nil
}

// resolveSubject valida un token del tipo dado y chequea que el subject siga
// resolviendo a una cuenta existente y no revocada.
func (s *Service) resolveSubject(ctx context.Context, kind jwtx.TokenKind, raw string) (*repository.User, error) {
	sub, err := s.Tokens.Validate(kind, raw)
	if err != nil {
		if errors.Is(err, jwtx.ErrTokenExpired) {
			s.Metrics.TokenValidation("expired")
			return nil, ErrTokenExpired
		}
		s.Metrics.TokenValidation("invalid")
		return nil, ErrTokenInvalid
	}
	u, err := s.Users.GetByID(ctx, sub)
	if err != nil {
		if repository.IsNotFound(err) {
			s.Metrics.TokenValidation("invalid")
			return nil, ErrTokenInvalid
		}
		return nil, Infra("users.get", err)
	}
	if !u.Active || u.Locked || u.Expired(time.Now()) {
		s.Metrics.TokenValidation("revoked")
		return nil, ErrTokenInvalid
	}
	s.Metrics.TokenValidation("ok")
	return u, nil
}

// Me valida un access token y devuelve el perfil vigente del subject.
func (s *Service) Me(ctx context.Context, accessRaw string) (*Profile, error) {
	u, err := s.resolveSubject(ctx, jwtx.KindAccess, accessRaw)
	if err != nil {
		return nil, err
	}
	return s.buildProfile(ctx, u)
}

// Refresh valida el refresh token y rota el par access+csrf. El refresh
// token no se reemplaza; el csrf viejo queda invalidado por sustitución.
func (s *Service) Refresh(ctx context.Context, refreshRaw string) (*Session, error) {
	u, err := s.resolveSubject(ctx, jwtx.KindRefresh, refreshRaw)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.Tokens.Issue(jwtx.KindAccess, u.ID)
	if err != nil {
		return nil, Infra("tokens.access", err)
	}
	csrf, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, Infra("tokens.csrf", err)
	}
	s.emit(ctx, audit.Event{
		Event:   "auth.refresh",
		Result:  audit.ResultSuccess,
		ActorID: u.ID,
		Target:  u.Username,
	})
	return &Session{
		Access:        access,
		CSRF:          csrf,
		AccessExpires: accessExp,
	}, nil
}

// Logout no tiene estado server-side que limpiar (tokens stateless): el
// handler borra las cookies. Acá solo queda el evento de auditoría.
func (s *Service) Logout(ctx context.Context, accessRaw, ip, requestID string) {
	actorID := ""
	if sub, err := s.Tokens.Validate(jwtx.KindAccess, accessRaw); err == nil {
		actorID = sub
	}
	s.emit(ctx, audit.Event{
		Event:     "auth.logout",
		Result:    audit.ResultSuccess,
		ActorID:   actorID,
		IP:        ip,
		RequestID: requestID,
	})
}

// CompleteOnboarding aplica el cambio de contraseña inicial y/o la
// aceptación de términos, y re-emite la sesión completa.
func (s *Service) CompleteOnboarding(ctx context.Context, accessRaw string, in OnboardingInput) (*LoginResult, error) {
	u, err := s.resolveSubject(ctx, jwtx.KindAccess, accessRaw)
	if err != nil {
		return nil, err
	}
	if in.NewPassword == "" && !in.AcceptTerms {
		return nil, ErrMissingFields
	}
	if in.NewPassword != "" {
		if err := password.CheckPolicy(in.NewPassword); err != nil {
			return nil, ErrWeakPassword
		}
		hash, err := password.Hash(password.Default, in.NewPassword)
		if err != nil {
			return nil, Infra("password.hash", err)
		}
		if err := s.Users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return nil, Infra("users.update_password", err)
		}
		u.MustChangePassword = false
	}
	if in.AcceptTerms {
		if err := s.Users.SetTermsAccepted(ctx, u.ID, time.Now().UTC()); err != nil {
			return nil, Infra("users.accept_terms", err)
		}
		u.TermsAccepted = true
	}
	s.emit(ctx, audit.Event{
		Event:   "auth.onboarding",
		Result:  audit.ResultSuccess,
		ActorID: u.ID,
		Target:  u.Username,
	})
	return s.issueSession(ctx, u)
}

// CSRFEqual compara dos valores CSRF en tiempo constante; falla cerrado si
// falta cualquiera de los dos lados.
func CSRFEqual(cookieVal, headerVal string) bool {
	if cookieVal == "" || headerVal == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieVal), []byte(headerVal)) == 1
}
