package identity

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventLoginTwoFactorPending = "login_two_factor_pending"
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterFailure       = "register_failure"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventEmailConfirmSuccess   = "email_confirm_success"
	auditEventEmailConfirmFailure   = "email_confirm_failure"
	auditEventEmailChanged          = "email_changed"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordRecovered     = "password_recovered"
	auditEventTwoFactorEnrolled     = "two_factor_enrolled"
	auditEventTwoFactorSuccess      = "two_factor_success"
	auditEventTwoFactorFailure      = "two_factor_failure"
	auditEventPasskeyRegistered     = "passkey_registered"
	auditEventPasskeyLoginSuccess   = "passkey_login_success"
	auditEventPasskeyLoginFailure   = "passkey_login_failure"
	auditEventPasskeyReplay         = "passkey_replay_detected"
	auditEventUserDeleted           = "user_deleted"
	auditEventUserRenamed           = "user_renamed"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by identity APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrCorruptCredential  AuditErrorCode = "corrupt_credential"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrCodeMismatch       AuditErrorCode = "code_mismatch"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrTwoFactorDisabled  AuditErrorCode = "two_factor_not_enabled"
	auditErrReplay             AuditErrorCode = "replay_detected"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCeremonyNotFound   AuditErrorCode = "ceremony_not_found"
	auditErrCollaborator       AuditErrorCode = "collaborator_failure"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	email string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", email, nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrBlankArgument):
		return auditErrInvalidInput
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrCorruptCredential):
		return auditErrCorruptCredential
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrDuplicateName):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return auditErrTwoFactorDisabled
	case errors.Is(err, ErrReplayDetected):
		return auditErrReplay
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrTwoFactorRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCeremonyNotFound):
		return auditErrCeremonyNotFound
	case errors.Is(err, ErrCollaborator):
		return auditErrCollaborator
	default:
		return auditErrInternal
	}
}
