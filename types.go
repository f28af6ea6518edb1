package identity

import (
	"context"
	"time"
)

// User is the account record persisted through [UserStore]. Hash is a stable
// opaque identifier minted at registration; it never changes, even when the
// e-mail does, and is the value external systems should key on.
type User struct {
	ID                  string
	Name                string
	Email               string
	PasswordDigest      string
	Hash                string
	EmailValid          bool
	EmailValidationCode string
	Roles               []string
	TwoFactorEnabled    bool
	TwoFactorSecret     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy. The engine hands cloned records to callers so
// store-internal state is never aliased.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Roles != nil {
		c.Roles = append([]string(nil), u.Roles...)
	}
	return &c
}

// WebAuthnCredential is a registered passkey persisted through
// [CredentialStore]. CredentialID is base64url (no padding). SignCount holds
// the authenticator's signature counter as of the last accepted assertion; a
// non-increasing counter disables the credential. AttestationCertificates is
// the x5c chain from the registration attestation statement, one base64url
// DER entry per certificate; self-attestation leaves it empty.
type WebAuthnCredential struct {
	CredentialID            string
	UserEmail               string
	PublicKey               []byte
	AttestationType         string
	AttestationCertificates []string
	AAGUID                  []byte
	Transport               []string
	SignCount               uint32
	DeviceName              string
	Disabled                bool
	CreatedAt               time.Time
	LastUsedAt              time.Time
}

// Clone returns a deep copy of the credential.
func (c *WebAuthnCredential) Clone() *WebAuthnCredential {
	if c == nil {
		return nil
	}
	d := *c
	d.PublicKey = append([]byte(nil), c.PublicKey...)
	d.AAGUID = append([]byte(nil), c.AAGUID...)
	if c.Transport != nil {
		d.Transport = append([]string(nil), c.Transport...)
	}
	if c.AttestationCertificates != nil {
		d.AttestationCertificates = append([]string(nil), c.AttestationCertificates...)
	}
	return &d
}

// UserStore is the primary interface that callers implement to integrate the
// engine with their user database. Lookups are by normalized (trimmed,
// lowercased) e-mail. Implementations own uniqueness: CreateUser and
// UpdateUser must return [ErrStoreDuplicateEmail], [ErrStoreDuplicateName]
// or [ErrStoreDuplicateHash] on conflict, and GetUserByEmail must return
// [ErrUserNotFound] for unknown addresses.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, email string) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// CredentialStore persists passkeys. CredentialByID returns
// [ErrCredentialNotFound] for unknown IDs.
type CredentialStore interface {
	SaveCredential(ctx context.Context, c *WebAuthnCredential) error
	CredentialsByEmail(ctx context.Context, email string) ([]*WebAuthnCredential, error)
	CredentialByID(ctx context.Context, credentialID string) (*WebAuthnCredential, error)
	UpdateCredential(ctx context.Context, c *WebAuthnCredential) error
}

// Notifier delivers outbound mail. SendVerification failures are logged and
// never fail the triggering operation; SendRecovery failures do, because the
// mail carries the generated password.
type Notifier interface {
	SendVerification(ctx context.Context, email, code, link string) error
	SendRecovery(ctx context.Context, email, password string) error
}

// AuthResult is returned by [Engine.Authenticate]. When the account has a
// second factor enabled, Token is empty and TwoFactorRequired is set; the
// caller completes the login through [Engine.VerifyTwoFactor].
type AuthResult struct {
	Token             string
	TwoFactorRequired bool
	User              *User
}

// TwoFactorSetup is returned by [Engine.SetupTwoFactor]. QRCode is a PNG
// rendering of URI suitable for direct display during enrollment.
type TwoFactorSetup struct {
	Secret string
	URI    string
	QRCode []byte
}

// PasskeyCeremony is returned by the Begin* passkey operations. Options is
// the JSON the browser passes to navigator.credentials; ID names the pending
// ceremony and must come back with the authenticator response.
type PasskeyCeremony struct {
	ID      string
	Options []byte
}
