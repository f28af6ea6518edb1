package identity

import (
	"context"
	"errors"
	"time"

	"github.com/orionworks/identity/internal"
	"github.com/orionworks/identity/password"
)

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, email, current, next string) error {
	if e.passwordHash == nil || e.userStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || current == "" {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "blank_arguments"}
		})
		return ErrInvalidCredentials
	}
	if len(next) < e.config.Password.MinLength {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, "", email, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_too_short"}
		})
		return ErrPasswordPolicy
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "user_not_found"}
		})
		return ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(current, user.PasswordDigest)
	if err != nil {
		if errors.Is(err, password.ErrMalformedDigest) {
			e.metricInc(MetricPasswordChangeFailure)
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, email, ErrCorruptCredential, func() map[string]string {
				return map[string]string{"reason": "corrupt_digest"}
			})
			return ErrCorruptCredential
		}
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, user.ID, email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	digest, err := e.passwordHash.Hash(next)
	if err != nil {
		return err
	}

	updated := user.Clone()
	updated.PasswordDigest = digest
	updated.UpdatedAt = time.Now().UTC()

	if err := e.userStore.UpdateUser(ctx, updated); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.ID, email, nil, nil)

	return nil
}

// RecoverPassword replaces the password with a generated one and mails it to
// the account address. Delivery is synchronous here: a recovery the user
// never receives would lock them out, so a notifier failure fails the call
// after the new password is already stored.
func (e *Engine) RecoverPassword(ctx context.Context, email string) error {
	if e.passwordHash == nil || e.userStore == nil || e.notifier == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrUserNotFound
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		return ErrUserNotFound
	}

	generated, err := internal.NewRecoveryPassword()
	if err != nil {
		return err
	}

	digest, err := e.passwordHash.Hash(generated)
	if err != nil {
		return err
	}

	updated := user.Clone()
	updated.PasswordDigest = digest
	updated.UpdatedAt = time.Now().UTC()

	if err := e.userStore.UpdateUser(ctx, updated); err != nil {
		return err
	}

	if err := e.notifier.SendRecovery(ctx, email, generated); err != nil {
		return errors.Join(ErrCollaborator, err)
	}

	e.metricInc(MetricPasswordRecovered)
	e.emitAudit(ctx, auditEventPasswordRecovered, true, user.ID, email, nil, nil)

	return nil
}
