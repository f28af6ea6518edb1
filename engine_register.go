package identity

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orionworks/identity/internal"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, name, email, plain string) (*User, error) {
	if e.passwordHash == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || plain == "" || !validEmailAddress(email) {
		e.metricInc(MetricRegisterInvalid)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrInvalidInput, func() map[string]string {
			return map[string]string{"reason": "blank_or_invalid"}
		})
		return nil, ErrInvalidInput
	}
	if len(plain) < e.config.Password.MinLength {
		e.metricInc(MetricRegisterInvalid)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_too_short"}
		})
		return nil, ErrPasswordPolicy
	}

	return e.createUser(ctx, name, email, plain, false)
}

// RegisterAndAuthenticate registers the user and immediately issues a token,
// saving the caller a round trip on signup flows.
func (e *Engine) RegisterAndAuthenticate(ctx context.Context, name, email, plain string) (*AuthResult, error) {
	user, err := e.Register(ctx, name, email, plain)
	if err != nil {
		return nil, err
	}

	token, err := e.issueToken(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Token: token, User: user}, nil
}

// createUser is the shared insert path for Register and passkey-first
// auto-provisioning. An empty plain password generates a policy password
// (the account is usable only through recovery or a passkey until then).
func (e *Engine) createUser(ctx context.Context, name, email, plain string, emailValid bool) (*User, error) {
	if plain == "" {
		generated, err := internal.NewRecoveryPassword()
		if err != nil {
			return nil, err
		}
		plain = generated
	}

	digest, err := e.passwordHash.Hash(plain)
	if err != nil {
		return nil, err
	}
	plain = ""

	now := time.Now().UTC()
	user := &User{
		ID:                  uuid.NewString(),
		Name:                name,
		Email:               email,
		PasswordDigest:      digest,
		Hash:                uuid.NewString(),
		EmailValid:          emailValid,
		EmailValidationCode: uuid.NewString(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := e.userStore.CreateUser(ctx, user); err != nil {
		if mapped := mapStoreConflict(err); mapped != nil {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", email, mapped, nil)
			return nil, mapped
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", email, err, func() map[string]string {
			return map[string]string{"reason": "store_create_failed"}
		})
		return nil, err
	}

	e.sendVerificationAsync(ctx, user.Email, user.EmailValidationCode)

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, email, nil, nil)

	return user.Clone(), nil
}

// UpdateName describes the updatename operation and its observable behavior.
//
// UpdateName may return an error when input validation, dependency calls, or security checks fail.
// UpdateName does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UpdateName(ctx context.Context, email, name string) (*User, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" {
		return nil, ErrInvalidInput
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	updated := user.Clone()
	updated.Name = name
	updated.UpdatedAt = time.Now().UTC()

	if err := e.userStore.UpdateUser(ctx, updated); err != nil {
		if mapped := mapStoreConflict(err); mapped != nil {
			return nil, mapped
		}
		return nil, err
	}

	e.emitAudit(ctx, auditEventUserRenamed, true, user.ID, email, nil, nil)

	return updated.Clone(), nil
}

// DeleteUser describes the deleteuser operation and its observable behavior.
//
// DeleteUser may return an error when input validation, dependency calls, or security checks fail.
// DeleteUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeleteUser(ctx context.Context, email string) error {
	if e.userStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := e.userStore.DeleteUser(ctx, email); err != nil {
		return err
	}

	e.metricInc(MetricUserDeleted)
	e.emitAudit(ctx, auditEventUserDeleted, true, user.ID, email, nil, nil)

	return nil
}

// ListUsers describes the listusers operation and its observable behavior.
//
// ListUsers may return an error when input validation, dependency calls, or security checks fail.
// ListUsers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListUsers(ctx context.Context) ([]*User, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	return e.userStore.ListUsers(ctx)
}

// sendVerificationAsync dispatches the verification e-mail without blocking
// the calling operation. Delivery failure is logged, never surfaced.
func (e *Engine) sendVerificationAsync(ctx context.Context, email, code string) {
	if e.notifier == nil {
		return
	}
	link := e.config.Notification.ValidationURL + "?code=" + code + "&email=" + email
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := e.notifier.SendVerification(sendCtx, email, code, link); err != nil {
			log.Print("identity: verification e-mail dispatch failed")
		}
	}()
}

func mapStoreConflict(err error) error {
	switch {
	case errors.Is(err, ErrStoreDuplicateEmail), errors.Is(err, ErrStoreDuplicateHash):
		return ErrDuplicateEmail
	case errors.Is(err, ErrStoreDuplicateName):
		return ErrDuplicateName
	default:
		return nil
	}
}
