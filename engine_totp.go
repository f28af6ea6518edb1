package identity

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/orionworks/identity/password"
)

// SetupTwoFactor describes the setuptwofactor operation and its observable behavior.
//
// SetupTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// SetupTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SetupTwoFactor(ctx context.Context, email, plain string) (*TwoFactorSetup, error) {
	if e.passwordHash == nil || e.userStore == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || plain == "" {
		return nil, ErrBlankArgument
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Enrollment re-authenticates so a stolen session cannot rebind 2FA.
	ok, err := e.passwordHash.Verify(plain, user.PasswordDigest)
	if err != nil {
		if errors.Is(err, password.ErrMalformedDigest) {
			return nil, ErrCorruptCredential
		}
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	plain = ""

	// An enrolled account keeps its secret: regenerating here would silently
	// break the authenticator the user already provisioned.
	secret := user.TwoFactorSecret
	if !user.TwoFactorEnabled || secret == "" {
		secret, err = e.totp.GenerateSecret()
		if err != nil {
			return nil, err
		}

		updated := user.Clone()
		updated.TwoFactorSecret = secret
		updated.TwoFactorEnabled = true
		updated.UpdatedAt = time.Now().UTC()

		if err := e.userStore.UpdateUser(ctx, updated); err != nil {
			return nil, err
		}

		e.metricInc(MetricTwoFactorEnrolled)
		e.emitAudit(ctx, auditEventTwoFactorEnrolled, true, user.ID, email, nil, nil)
	}

	uri := e.totp.ProvisionURI(secret, email)

	png, err := qrcodePNG(uri, e.config.TOTP.QRSize)
	if err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret: secret,
		URI:    uri,
		QRCode: png,
	}, nil
}

// VerifyTwoFactor completes a login that Authenticate left pending. Both
// factors are checked here: the password is re-verified before the code, so
// possession of a current code alone never yields a token. A valid pair
// issues the token and clears both throttle windows for the account.
func (e *Engine) VerifyTwoFactor(ctx context.Context, email, plain, code string) (*AuthResult, error) {
	if e.passwordHash == nil || e.userStore == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || plain == "" || code == "" {
		return nil, ErrBlankArgument
	}

	ip := clientIPFromContext(ctx)

	if e.twoFactorLimiter != nil {
		if err := e.twoFactorLimiter.Check(ctx, email, ip); err != nil {
			if errors.Is(err, errLimiterExceeded) {
				e.metricInc(MetricTwoFactorRateLimited)
				e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", email, ErrTwoFactorRateLimited, nil)
				e.emitRateLimit(ctx, "two_factor", email, nil)
				return nil, ErrTwoFactorRateLimited
			}
			return nil, errors.Join(ErrCollaborator, err)
		}
	}

	if len(code) != e.config.TOTP.Digits || !isNumericString(code) {
		return nil, e.failTwoFactor(ctx, "", email, ip, "malformed_code", ErrInvalidCode)
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		// Indistinguishable from a wrong password, as in Authenticate.
		return nil, e.failTwoFactor(ctx, "", email, ip, "user_not_found", ErrInvalidCredentials)
	}

	ok, err := e.passwordHash.Verify(plain, user.PasswordDigest)
	if err != nil {
		if errors.Is(err, password.ErrMalformedDigest) {
			return nil, ErrCorruptCredential
		}
		return nil, err
	}
	if !ok {
		return nil, e.failTwoFactor(ctx, user.ID, email, ip, "password_mismatch", ErrInvalidCredentials)
	}
	plain = ""

	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotEnabled
	}

	ok, err = e.totp.VerifyCode(user.TwoFactorSecret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.failTwoFactor(ctx, user.ID, email, ip, "code_mismatch", ErrInvalidCode)
	}

	token, err := e.issueToken(user)
	if err != nil {
		return nil, err
	}

	if e.twoFactorLimiter != nil {
		if err := e.twoFactorLimiter.Reset(ctx, email, ip); err != nil {
			log.Print("identity: two-factor limiter reset failed")
		}
	}
	if e.loginLimiter != nil {
		// The pending login left its failure window armed.
		if err := e.loginLimiter.Reset(ctx, email, ip); err != nil {
			log.Print("identity: login limiter reset failed")
		}
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, user.ID, email, nil, nil)

	return &AuthResult{Token: token, User: user.Clone()}, nil
}

func (e *Engine) failTwoFactor(ctx context.Context, userID, email, ip, reason string, cause error) error {
	if e.twoFactorLimiter != nil {
		if err := e.twoFactorLimiter.RecordFailure(ctx, email, ip); err != nil {
			log.Print("identity: two-factor limiter increment failed")
		}
	}
	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, email, cause, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return cause
}
