// Package identity is an embeddable user-identity engine: registration with
// argon2id credential hashing, e-mail verification codes, password change and
// recovery, TOTP second factor, WebAuthn passkeys, and JWT issuance.
//
// The engine is storage-agnostic. Callers plug in a [UserStore] and
// [CredentialStore] backed by their own database, a [Notifier] for outbound
// mail, and a Redis client for ephemeral state (passkey ceremony sessions and
// fixed-window login throttling). Construction goes through [Builder]; Engine
// methods are safe for concurrent use once [Builder.Build] returns.
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces, and value types (AuthResult, TwoFactorSetup,
// MetricsSnapshot). Randomness helpers live under internal/ and are never
// exported. The jwt and password subpackages are usable on their own.
//
// # What this package must NOT do
//
//   - Expose Redis clients, ceremony encodings, or digest formats in its
//     public API.
//   - Perform I/O during construction (Builder is allocation-only until
//     Build).
//   - Block an operation on outbound mail: verification mail is dispatched
//     fire-and-forget; only recovery mail, where delivery is the point, is
//     synchronous.
package identity
