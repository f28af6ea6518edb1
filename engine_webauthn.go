package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// passkeyUser adapts a stored user plus their decoded credentials to the
// shape the WebAuthn library works with. The user handle is the account ID,
// never the address, so an e-mail change does not orphan passkeys.
type passkeyUser struct {
	user        *User
	credentials []webauthn.Credential
}

func (p *passkeyUser) WebAuthnID() []byte {
	return []byte(p.user.ID)
}

func (p *passkeyUser) WebAuthnName() string {
	return p.user.Email
}

func (p *passkeyUser) WebAuthnDisplayName() string {
	return p.user.Name
}

func (p *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return p.credentials
}

// BeginPasskeyRegistration describes the beginpasskeyregistration operation and its observable behavior.
//
// BeginPasskeyRegistration may return an error when input validation, dependency calls, or security checks fail.
// BeginPasskeyRegistration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BeginPasskeyRegistration(ctx context.Context, email string) (*PasskeyCeremony, error) {
	if e.webAuthn == nil || e.ceremonies == nil || e.credentialStore == nil {
		return nil, ErrPasskeysDisabled
	}

	email = normalizeEmail(email)
	if !validEmailAddress(email) {
		return nil, ErrInvalidInput
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		// Passkey-first signup: provision the account on the spot. The
		// generated password stays unknown until the user runs recovery.
		name := email[:strings.LastIndex(email, "@")]
		user, err = e.createUser(ctx, name, email, "", false)
		if err != nil {
			return nil, err
		}
	}

	stored, err := e.credentialStore.CredentialsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(stored))
	waUser := &passkeyUser{user: user}
	for _, rec := range stored {
		cred, err := credentialToWebAuthn(rec)
		if err != nil {
			return nil, err
		}
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		})
		if !rec.Disabled {
			waUser.credentials = append(waUser.credentials, cred)
		}
	}

	creation, session, err := e.webAuthn.BeginRegistration(waUser, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, err
	}

	return e.saveCeremony(ctx, ceremonyRegistration, email, creation, session)
}

// FinishPasskeyRegistration describes the finishpasskeyregistration operation and its observable behavior.
//
// FinishPasskeyRegistration may return an error when input validation, dependency calls, or security checks fail.
// FinishPasskeyRegistration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) FinishPasskeyRegistration(ctx context.Context, ceremonyID, deviceName string, response []byte) (*WebAuthnCredential, error) {
	if e.webAuthn == nil || e.ceremonies == nil || e.credentialStore == nil {
		return nil, ErrPasskeysDisabled
	}

	record, err := e.consumeCeremony(ctx, ceremonyID, ceremonyRegistration)
	if err != nil {
		return nil, err
	}

	user, err := e.userStore.GetUserByEmail(ctx, record.Email)
	if err != nil {
		return nil, ErrUserNotFound
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return nil, err
	}

	waUser := &passkeyUser{user: user}
	cred, err := e.webAuthn.CreateCredential(waUser, record.Session, parsed)
	if err != nil {
		e.emitAudit(ctx, auditEventPasskeyRegistered, false, user.ID, user.Email, err, nil)
		return nil, err
	}

	stored := credentialFromWebAuthn(cred, user.Email, deviceName, attestationCertificates(parsed))
	if err := e.credentialStore.SaveCredential(ctx, stored); err != nil {
		return nil, err
	}

	e.metricInc(MetricPasskeyRegistered)
	e.emitAudit(ctx, auditEventPasskeyRegistered, true, user.ID, user.Email, nil, func() map[string]string {
		return map[string]string{"credential_id": stored.CredentialID}
	})

	return stored.Clone(), nil
}

// BeginPasskeyLogin starts an assertion ceremony. An empty address requests
// a discoverable login where the authenticator picks the account.
func (e *Engine) BeginPasskeyLogin(ctx context.Context, email string) (*PasskeyCeremony, error) {
	if e.webAuthn == nil || e.ceremonies == nil || e.credentialStore == nil {
		return nil, ErrPasskeysDisabled
	}

	email = normalizeEmail(email)

	if email == "" {
		assertion, session, err := e.webAuthn.BeginDiscoverableLogin()
		if err != nil {
			return nil, err
		}
		return e.saveCeremony(ctx, ceremonyLogin, "", assertion, session)
	}

	user, err := e.userStore.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrUserNotFound
	}

	waUser, err := e.loadPasskeyUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(waUser.credentials) == 0 {
		return nil, ErrCredentialNotFound
	}

	assertion, session, err := e.webAuthn.BeginLogin(waUser)
	if err != nil {
		return nil, err
	}

	return e.saveCeremony(ctx, ceremonyLogin, email, assertion, session)
}

// FinishPasskeyLogin describes the finishpasskeylogin operation and its observable behavior.
//
// FinishPasskeyLogin may return an error when input validation, dependency calls, or security checks fail.
// FinishPasskeyLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) FinishPasskeyLogin(ctx context.Context, ceremonyID string, response []byte) (*AuthResult, error) {
	if e.webAuthn == nil || e.ceremonies == nil || e.credentialStore == nil {
		return nil, ErrPasskeysDisabled
	}

	record, err := e.consumeCeremony(ctx, ceremonyID, ceremonyLogin)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return nil, err
	}

	var user *User
	var validated *webauthn.Credential

	if record.Email == "" {
		handler := func(rawID, userHandle []byte) (webauthn.User, error) {
			credID := base64.RawURLEncoding.EncodeToString(rawID)
			rec, err := e.credentialStore.CredentialByID(ctx, credID)
			if err != nil {
				return nil, ErrCredentialNotFound
			}
			owner, err := e.userStore.GetUserByEmail(ctx, rec.UserEmail)
			if err != nil {
				return nil, ErrUserNotFound
			}
			user = owner
			return e.loadPasskeyUser(ctx, owner)
		}
		validated, err = e.webAuthn.ValidateDiscoverableLogin(handler, record.Session, parsed)
	} else {
		user, err = e.userStore.GetUserByEmail(ctx, record.Email)
		if err != nil {
			return nil, ErrUserNotFound
		}
		var waUser *passkeyUser
		waUser, err = e.loadPasskeyUser(ctx, user)
		if err != nil {
			return nil, err
		}
		validated, err = e.webAuthn.ValidateLogin(waUser, record.Session, parsed)
	}
	if err != nil {
		e.metricInc(MetricPasskeyLoginFailure)
		email := record.Email
		userID := ""
		if user != nil {
			email = user.Email
			userID = user.ID
		}
		e.emitAudit(ctx, auditEventPasskeyLoginFailure, false, userID, email, err, nil)
		return nil, ErrInvalidCredentials
	}

	credID := base64.RawURLEncoding.EncodeToString(validated.ID)
	stored, err := e.credentialStore.CredentialByID(ctx, credID)
	if err != nil {
		return nil, ErrCredentialNotFound
	}

	if validated.Authenticator.CloneWarning {
		// The signature counter did not advance. Either the assertion was
		// replayed or the private key lives on more than one device. The
		// credential stays disabled until the account owner intervenes.
		disabled := stored.Clone()
		disabled.Disabled = true
		disabled.SignCount = validated.Authenticator.SignCount
		if err := e.credentialStore.UpdateCredential(ctx, disabled); err != nil {
			log.Print("identity: credential disable after replay failed")
		}
		e.metricInc(MetricReplayDetected)
		e.emitAudit(ctx, auditEventPasskeyReplay, false, user.ID, user.Email, ErrReplayDetected, func() map[string]string {
			return map[string]string{"credential_id": credID}
		})
		return nil, ErrReplayDetected
	}

	updated := stored.Clone()
	updated.SignCount = validated.Authenticator.SignCount
	updated.LastUsedAt = time.Now().UTC()
	if err := e.credentialStore.UpdateCredential(ctx, updated); err != nil {
		return nil, err
	}

	token, err := e.issueToken(user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricPasskeyLoginSuccess)
	e.emitAudit(ctx, auditEventPasskeyLoginSuccess, true, user.ID, user.Email, nil, func() map[string]string {
		return map[string]string{"credential_id": credID}
	})

	return &AuthResult{Token: token, User: user.Clone()}, nil
}

// ListPasskeys describes the listpasskeys operation and its observable behavior.
//
// ListPasskeys may return an error when input validation, dependency calls, or security checks fail.
// ListPasskeys does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListPasskeys(ctx context.Context, email string) ([]*WebAuthnCredential, error) {
	if e.credentialStore == nil {
		return nil, ErrPasskeysDisabled
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	return e.credentialStore.CredentialsByEmail(ctx, email)
}

func (e *Engine) loadPasskeyUser(ctx context.Context, user *User) (*passkeyUser, error) {
	stored, err := e.credentialStore.CredentialsByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	waUser := &passkeyUser{user: user}
	for _, rec := range stored {
		if rec.Disabled {
			continue
		}
		cred, err := credentialToWebAuthn(rec)
		if err != nil {
			return nil, err
		}
		waUser.credentials = append(waUser.credentials, cred)
	}
	return waUser, nil
}

func (e *Engine) saveCeremony(ctx context.Context, kind ceremonyKind, email string, options any, session *webauthn.SessionData) (*PasskeyCeremony, error) {
	encoded, err := json.Marshal(options)
	if err != nil {
		return nil, err
	}

	ceremonyID := uuid.NewString()
	record := &ceremonyRecord{
		Kind:    kind,
		Email:   email,
		Session: *session,
	}
	if err := e.ceremonies.Save(ctx, ceremonyID, record, e.config.WebAuthn.CeremonyTTL); err != nil {
		return nil, errors.Join(ErrCollaborator, err)
	}

	return &PasskeyCeremony{ID: ceremonyID, Options: encoded}, nil
}

func (e *Engine) consumeCeremony(ctx context.Context, ceremonyID string, kind ceremonyKind) (*ceremonyRecord, error) {
	record, err := e.ceremonies.Consume(ctx, ceremonyID, kind)
	if err != nil {
		switch {
		case errors.Is(err, errCeremonyNotFound), errors.Is(err, errCeremonyKindMismatch):
			return nil, ErrCeremonyNotFound
		default:
			return nil, errors.Join(ErrCollaborator, err)
		}
	}
	return record, nil
}

func credentialToWebAuthn(rec *WebAuthnCredential) (webauthn.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(rec.CredentialID)
	if err != nil {
		return webauthn.Credential{}, err
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(rec.Transport))
	for _, t := range rec.Transport {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              id,
		PublicKey:       append([]byte(nil), rec.PublicKey...),
		AttestationType: rec.AttestationType,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			AAGUID:    append([]byte(nil), rec.AAGUID...),
			SignCount: rec.SignCount,
		},
	}, nil
}

func credentialFromWebAuthn(cred *webauthn.Credential, email, deviceName string, chain []string) *WebAuthnCredential {
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	return &WebAuthnCredential{
		CredentialID:            base64.RawURLEncoding.EncodeToString(cred.ID),
		UserEmail:               email,
		PublicKey:               append([]byte(nil), cred.PublicKey...),
		AttestationType:         cred.AttestationType,
		AttestationCertificates: chain,
		AAGUID:                  append([]byte(nil), cred.Authenticator.AAGUID...),
		Transport:               transports,
		SignCount:               cred.Authenticator.SignCount,
		DeviceName:              strings.TrimSpace(deviceName),
		CreatedAt:               time.Now().UTC(),
	}
}

// attestationCertificates pulls the x5c chain out of the attestation
// statement, one base64url DER entry per certificate. Format "none" and
// self-attestation statements carry no chain.
func attestationCertificates(parsed *protocol.ParsedCredentialCreationData) []string {
	raw, ok := parsed.Response.AttestationObject.AttStatement["x5c"].([]any)
	if !ok {
		return nil
	}

	chain := make([]string, 0, len(raw))
	for _, entry := range raw {
		der, ok := entry.([]byte)
		if !ok {
			continue
		}
		chain = append(chain, base64.RawURLEncoding.EncodeToString(der))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}
