package identity

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/orionworks/identity/jwt"
	"github.com/orionworks/identity/password"
)

// Engine defines a public type used by identity APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config           Config
	userStore        UserStore
	credentialStore  CredentialStore
	notifier         Notifier
	loginLimiter     *fixedWindowLimiter
	twoFactorLimiter *fixedWindowLimiter
	ceremonies       *ceremonyStore
	webAuthn         *webauthn.WebAuthn
	audit            *auditDispatcher
	metrics          *Metrics
	passwordHash     *password.Argon2
	totp             *totpManager
	jwtManager       *jwt.Manager
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// EffectiveRoles returns the user's stored roles, or the configured default
// role when none are stored. The computed default is never persisted back.
func (e *Engine) EffectiveRoles(u *User) []string {
	if u == nil {
		return nil
	}
	if len(u.Roles) > 0 {
		return append([]string(nil), u.Roles...)
	}
	return []string{e.config.Registration.DefaultRole}
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Authenticate(ctx context.Context, email, plain string) (*AuthResult, error) {
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}
	if e.passwordHash == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if e.loginLimiter != nil {
		if err := e.loginLimiter.Check(ctx, email, ip); err != nil {
			if errors.Is(err, errLimiterExceeded) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", email, ErrLoginRateLimited, nil)
				e.emitRateLimit(ctx, "login", email, nil)
				return nil, ErrLoginRateLimited
			}
			return nil, errors.Join(ErrCollaborator, err)
		}
	}

	if email == "" || plain == "" {
		return nil, e.failLogin(ctx, "", email, ip, "blank_arguments")
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		// Unknown user and wrong password are indistinguishable to callers.
		return nil, e.failLogin(ctx, "", email, ip, "user_not_found")
	}

	ok, err := e.passwordHash.Verify(plain, user.PasswordDigest)
	if err != nil {
		if errors.Is(err, password.ErrMalformedDigest) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, email, ErrCorruptCredential, func() map[string]string {
				return map[string]string{"reason": "corrupt_digest"}
			})
			return nil, ErrCorruptCredential
		}
		return nil, err
	}
	if !ok {
		return nil, e.failLogin(ctx, user.ID, email, ip, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordDigest); err == nil && needsUpgrade {
			if upgraded, err := e.passwordHash.Hash(plain); err == nil {
				rehashed := user.Clone()
				rehashed.PasswordDigest = upgraded
				rehashed.UpdatedAt = time.Now().UTC()
				// Rehash update is best-effort and must not block successful login.
				if err := e.userStore.UpdateUser(ctx, rehashed); err != nil {
					log.Print("identity: password digest upgrade update failed")
				}
			} else {
				log.Print("identity: password digest upgrade generation failed")
			}
		}
	}
	plain = ""

	if user.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventLoginTwoFactorPending, true, user.ID, email, nil, nil)
		return &AuthResult{TwoFactorRequired: true, User: user.Clone()}, nil
	}

	token, err := e.issueToken(user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, email, err, func() map[string]string {
			return map[string]string{"reason": "token_issue_failed"}
		})
		return nil, err
	}

	if e.loginLimiter != nil {
		// Limiter reset is best-effort.
		if err := e.loginLimiter.Reset(ctx, email, ip); err != nil {
			log.Print("identity: login limiter reset failed")
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, email, nil, nil)

	return &AuthResult{Token: token, User: user.Clone()}, nil
}

// ValidateAccess verifies an access token previously issued by this engine
// and returns its claims. Verification is stateless: signature, expiry, and
// issuer are checked against the configured signing material only.
func (e *Engine) ValidateAccess(token string) (*jwt.AccessClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

func (e *Engine) failLogin(ctx context.Context, userID, email, ip, reason string) error {
	if e.loginLimiter != nil {
		if err := e.loginLimiter.RecordFailure(ctx, email, ip); err != nil {
			log.Print("identity: login limiter increment failed")
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, email, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}

func (e *Engine) issueToken(u *User) (string, error) {
	if e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	return e.jwtManager.CreateAccess(u.Email, u.Hash, e.EffectiveRoles(u))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmailAddress accepts addr-spec addresses with a dotted domain. The
// stricter dotted-domain requirement rejects bare hostnames that net/mail
// would otherwise allow.
func validEmailAddress(email string) bool {
	if email == "" {
		return false
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at < 1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
