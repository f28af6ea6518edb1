package identity

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
)

// ConfirmEmail describes the confirmemail operation and its observable behavior.
//
// ConfirmEmail may return an error when input validation, dependency calls, or security checks fail.
// ConfirmEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmEmail(ctx context.Context, email, code string) error {
	if e.userStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || code == "" {
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, "", email, ErrCodeMismatch, nil)
		return ErrCodeMismatch
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		// Unknown address and wrong code report the same failure so the
		// endpoint cannot be used to probe registered addresses.
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, "", email, ErrCodeMismatch, func() map[string]string {
			return map[string]string{"reason": "user_not_found"}
		})
		return ErrCodeMismatch
	}

	if subtle.ConstantTimeCompare([]byte(user.EmailValidationCode), []byte(code)) != 1 {
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, user.ID, email, ErrCodeMismatch, func() map[string]string {
			return map[string]string{"reason": "code_mismatch"}
		})
		return ErrCodeMismatch
	}

	// Re-confirming with the current code is idempotent.
	if !user.EmailValid {
		updated := user.Clone()
		updated.EmailValid = true
		updated.UpdatedAt = time.Now().UTC()
		if err := e.userStore.UpdateUser(ctx, updated); err != nil {
			return err
		}
	}

	e.metricInc(MetricEmailConfirmSuccess)
	e.emitAudit(ctx, auditEventEmailConfirmSuccess, true, user.ID, email, nil, nil)

	return nil
}

// ChangeEmail moves the account to a new address. The account drops back to
// unverified and a fresh validation code goes out to the new address.
func (e *Engine) ChangeEmail(ctx context.Context, email, newEmail string) (*User, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	newEmail = normalizeEmail(newEmail)
	if email == "" || !validEmailAddress(newEmail) {
		return nil, ErrInvalidInput
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if newEmail == user.Email {
		return user.Clone(), nil
	}

	updated := user.Clone()
	updated.Email = newEmail
	updated.EmailValid = false
	updated.EmailValidationCode = uuid.NewString()
	updated.UpdatedAt = time.Now().UTC()

	if err := e.userStore.UpdateUser(ctx, updated); err != nil {
		if mapped := mapStoreConflict(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	e.sendVerificationAsync(ctx, updated.Email, updated.EmailValidationCode)

	e.metricInc(MetricEmailChanged)
	e.emitAudit(ctx, auditEventEmailChanged, true, user.ID, email, nil, func() map[string]string {
		return map[string]string{"new_email": newEmail}
	})

	return updated.Clone(), nil
}
