package identity

import "errors"

var (
	// ErrInvalidInput is an exported constant or variable used by the identity engine.
	ErrInvalidInput = errors.New("blank arguments or invalid e-mail")
	// ErrBlankArgument is an exported constant or variable used by the identity engine.
	ErrBlankArgument = errors.New("blank argument")
	// ErrPasswordPolicy is an exported constant or variable used by the identity engine.
	ErrPasswordPolicy = errors.New("password must have at least 8 characters")
	// ErrDuplicateEmail is an exported constant or variable used by the identity engine.
	ErrDuplicateEmail = errors.New("e-mail already in use")
	// ErrDuplicateName is an exported constant or variable used by the identity engine.
	ErrDuplicateName = errors.New("name already in use")
	// ErrUserNotFound is an exported constant or variable used by the identity engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is an exported constant or variable used by the identity engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCorruptCredential is an exported constant or variable used by the identity engine.
	ErrCorruptCredential = errors.New("stored credential is malformed")
	// ErrCodeMismatch is an exported constant or variable used by the identity engine.
	ErrCodeMismatch = errors.New("invalid e-mail or validation code")
	// ErrInvalidCode is an exported constant or variable used by the identity engine.
	ErrInvalidCode = errors.New("invalid one-time code")
	// ErrTwoFactorNotEnabled is an exported constant or variable used by the identity engine.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrReplayDetected is an exported constant or variable used by the identity engine.
	ErrReplayDetected = errors.New("authenticator replay detected")
	// ErrPasskeysDisabled is an exported constant or variable used by the identity engine.
	ErrPasskeysDisabled = errors.New("passkeys disabled")
	// ErrCeremonyNotFound is an exported constant or variable used by the identity engine.
	ErrCeremonyNotFound = errors.New("ceremony not found or expired")
	// ErrCredentialNotFound is an exported constant or variable used by the identity engine.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrInvalidToken is an exported constant or variable used by the identity engine.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrLoginRateLimited is an exported constant or variable used by the identity engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTwoFactorRateLimited is an exported constant or variable used by the identity engine.
	ErrTwoFactorRateLimited = errors.New("two-factor attempts rate limited")
	// ErrCollaborator is an exported constant or variable used by the identity engine.
	ErrCollaborator = errors.New("collaborator failure")
	// ErrEngineNotReady is an exported constant or variable used by the identity engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// Store implementations translate their conflict and not-found conditions
	// to these sentinels so the engine can map them uniformly.

	// ErrStoreDuplicateEmail is an exported constant or variable used by the identity engine.
	ErrStoreDuplicateEmail = errors.New("store: duplicate e-mail")
	// ErrStoreDuplicateName is an exported constant or variable used by the identity engine.
	ErrStoreDuplicateName = errors.New("store: duplicate name")
	// ErrStoreDuplicateHash is an exported constant or variable used by the identity engine.
	ErrStoreDuplicateHash = errors.New("store: duplicate hash")
)
