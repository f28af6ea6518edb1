package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
)

func passkeyTestConfig() Config {
	cfg := testConfig()
	cfg.WebAuthn.Enabled = true
	return cfg
}

func passkeyRelyingParty(cfg Config) virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{
		Name:   cfg.WebAuthn.RPDisplayName,
		ID:     cfg.WebAuthn.RPID,
		Origin: cfg.WebAuthn.RPOrigins[0],
	}
}

func registerPasskey(
	t *testing.T,
	engine *Engine,
	rp virtualwebauthn.RelyingParty,
	authenticator *virtualwebauthn.Authenticator,
	credential *virtualwebauthn.Credential,
	email, device string,
) *WebAuthnCredential {
	t.Helper()
	ctx := context.Background()

	ceremony, err := engine.BeginPasskeyRegistration(ctx, email)
	if err != nil {
		t.Fatalf("BeginPasskeyRegistration failed: %v", err)
	}
	if ceremony.ID == "" || len(ceremony.Options) == 0 {
		t.Fatal("expected ceremony id and options")
	}

	options, err := virtualwebauthn.ParseAttestationOptions(string(ceremony.Options))
	if err != nil {
		t.Fatalf("ParseAttestationOptions failed: %v", err)
	}

	response := virtualwebauthn.CreateAttestationResponse(rp, *authenticator, *credential, *options)

	stored, err := engine.FinishPasskeyRegistration(ctx, ceremony.ID, device, []byte(response))
	if err != nil {
		t.Fatalf("FinishPasskeyRegistration failed: %v", err)
	}
	authenticator.AddCredential(*credential)

	return stored
}

func passkeyLogin(
	t *testing.T,
	engine *Engine,
	rp virtualwebauthn.RelyingParty,
	authenticator *virtualwebauthn.Authenticator,
	credential *virtualwebauthn.Credential,
	email string,
) (*AuthResult, error) {
	t.Helper()
	ctx := context.Background()

	ceremony, err := engine.BeginPasskeyLogin(ctx, email)
	if err != nil {
		return nil, err
	}

	options, err := virtualwebauthn.ParseAssertionOptions(string(ceremony.Options))
	if err != nil {
		t.Fatalf("ParseAssertionOptions failed: %v", err)
	}

	response := virtualwebauthn.CreateAssertionResponse(rp, *authenticator, *credential, *options)

	return engine.FinishPasskeyLogin(ctx, ceremony.ID, []byte(response))
}

func TestPasskeyRegistrationAndLogin(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	stored := registerPasskey(t, engine, rp, &authenticator, &credential, "alice@example.com", "yubikey")
	if stored.CredentialID == "" || len(stored.PublicKey) == 0 {
		t.Fatal("expected stored credential id and public key")
	}
	if stored.UserEmail != "alice@example.com" || stored.DeviceName != "yubikey" {
		t.Fatalf("unexpected credential metadata: %+v", stored)
	}

	credential.Counter++
	res, err := passkeyLogin(t, engine, rp, &authenticator, &credential, "alice@example.com")
	if err != nil {
		t.Fatalf("passkey login failed: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected access token")
	}

	claims, err := engine.jwtManager.ParseAccess(res.Token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UPN != "alice@example.com" {
		t.Fatalf("unexpected token subject: %s", claims.UPN)
	}

	creds, err := engine.ListPasskeys(context.Background(), "alice@example.com")
	if err != nil || len(creds) != 1 {
		t.Fatalf("expected one stored passkey, got %d err=%v", len(creds), err)
	}
	if creds[0].SignCount != 1 {
		t.Fatalf("expected sign count 1, got %d", creds[0].SignCount)
	}
	if creds[0].LastUsedAt.IsZero() {
		t.Fatal("expected last-used timestamp")
	}
	if !reflect.DeepEqual(creds[0].AttestationCertificates, stored.AttestationCertificates) {
		t.Fatal("attestation chain not persisted with the credential")
	}
}

func TestPasskeyAttestationChainPersisted(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())
	ctx := context.Background()

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	ceremony, err := engine.BeginPasskeyRegistration(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginPasskeyRegistration failed: %v", err)
	}
	options, err := virtualwebauthn.ParseAttestationOptions(string(ceremony.Options))
	if err != nil {
		t.Fatalf("ParseAttestationOptions failed: %v", err)
	}
	response := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *options)

	// The persisted chain must be exactly the x5c the attestation carried.
	parsed, err := protocol.ParseCredentialCreationResponseBytes([]byte(response))
	if err != nil {
		t.Fatalf("ParseCredentialCreationResponseBytes failed: %v", err)
	}
	want := attestationCertificates(parsed)

	stored, err := engine.FinishPasskeyRegistration(ctx, ceremony.ID, "", []byte(response))
	if err != nil {
		t.Fatalf("FinishPasskeyRegistration failed: %v", err)
	}
	if !reflect.DeepEqual(stored.AttestationCertificates, want) {
		t.Fatalf("persisted chain %v does not match attestation x5c %v", stored.AttestationCertificates, want)
	}
}

func TestAttestationCertificatesExtraction(t *testing.T) {
	der1 := []byte{0x30, 0x82, 0x01, 0x0a, 0x01}
	der2 := []byte{0x30, 0x82, 0x02, 0x0b, 0x02}

	parsed := &protocol.ParsedCredentialCreationData{}
	parsed.Response.AttestationObject.AttStatement = map[string]any{
		"alg": int64(-7),
		"x5c": []any{der1, der2},
	}

	chain := attestationCertificates(parsed)
	if len(chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(chain))
	}
	if chain[0] != base64.RawURLEncoding.EncodeToString(der1) || chain[1] != base64.RawURLEncoding.EncodeToString(der2) {
		t.Fatalf("unexpected chain encoding: %v", chain)
	}

	// No x5c (self-attestation or format "none") means no chain.
	bare := &protocol.ParsedCredentialCreationData{}
	bare.Response.AttestationObject.AttStatement = map[string]any{"alg": int64(-7)}
	if got := attestationCertificates(bare); got != nil {
		t.Fatalf("expected nil chain without x5c, got %v", got)
	}
}

func TestPasskeyRegistrationAutoProvisionsUser(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	notifier := newTestNotifier()
	engine, _ := newEngineForTest(t, cfg, store, notifier)

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	registerPasskey(t, engine, rp, &authenticator, &credential, "fresh@example.com", "")

	user := store.user(t, "fresh@example.com")
	if user.Name != "fresh" {
		t.Fatalf("expected local-part name, got %q", user.Name)
	}
	if user.EmailValid {
		t.Fatal("expected auto-provisioned account to start unverified")
	}
	if user.PasswordDigest == "" {
		t.Fatal("expected a generated password digest")
	}

	mail := notifier.waitVerification(t)
	if mail.email != "fresh@example.com" {
		t.Fatalf("expected verification mail to new account, got %+v", mail)
	}

	// The passkey logs the new account in without a password ever existing
	// in anyone's hands.
	credential.Counter++
	if _, err := passkeyLogin(t, engine, rp, &authenticator, &credential, "fresh@example.com"); err != nil {
		t.Fatalf("passkey login failed: %v", err)
	}
}

func TestPasskeyDiscoverableLogin(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	registerPasskey(t, engine, rp, &authenticator, &credential, "alice@example.com", "")

	// The discoverable flow sends the user handle with the assertion.
	user := store.user(t, "alice@example.com")
	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(user.ID),
	})
	discoverable.AddCredential(credential)

	credential.Counter++
	res, err := passkeyLogin(t, engine, rp, &discoverable, &credential, "")
	if err != nil {
		t.Fatalf("discoverable login failed: %v", err)
	}
	if res.User.Email != "alice@example.com" {
		t.Fatalf("expected alice, got %s", res.User.Email)
	}
}

func TestPasskeyReplayDisablesCredential(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())
	ctx := context.Background()

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	registerPasskey(t, engine, rp, &authenticator, &credential, "alice@example.com", "")

	credential.Counter = 5
	if _, err := passkeyLogin(t, engine, rp, &authenticator, &credential, "alice@example.com"); err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	// A second assertion with the same counter means the signature counter
	// never advanced: replay or a cloned key.
	_, err := passkeyLogin(t, engine, rp, &authenticator, &credential, "alice@example.com")
	if !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}

	creds, err := engine.ListPasskeys(ctx, "alice@example.com")
	if err != nil || len(creds) != 1 {
		t.Fatalf("expected one stored passkey, got %d err=%v", len(creds), err)
	}
	if !creds[0].Disabled {
		t.Fatal("expected credential to be disabled after replay")
	}

	// With its only credential disabled the account has nothing to assert.
	if _, err := engine.BeginPasskeyLogin(ctx, "alice@example.com"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestPasskeyCeremonySingleUse(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())
	ctx := context.Background()

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	ceremony, err := engine.BeginPasskeyRegistration(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginPasskeyRegistration failed: %v", err)
	}
	options, err := virtualwebauthn.ParseAttestationOptions(string(ceremony.Options))
	if err != nil {
		t.Fatalf("ParseAttestationOptions failed: %v", err)
	}
	response := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *options)

	if _, err := engine.FinishPasskeyRegistration(ctx, ceremony.ID, "", []byte(response)); err != nil {
		t.Fatalf("FinishPasskeyRegistration failed: %v", err)
	}

	// The same ceremony cannot finish twice.
	_, err = engine.FinishPasskeyRegistration(ctx, ceremony.ID, "", []byte(response))
	if !errors.Is(err, ErrCeremonyNotFound) {
		t.Fatalf("expected ErrCeremonyNotFound, got %v", err)
	}
}

func TestPasskeyCeremonyKindConfusionRejected(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())
	ctx := context.Background()

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	ceremony, err := engine.BeginPasskeyRegistration(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginPasskeyRegistration failed: %v", err)
	}

	// A registration ceremony id cannot finish a login.
	if _, err := engine.FinishPasskeyLogin(ctx, ceremony.ID, []byte("{}")); !errors.Is(err, ErrCeremonyNotFound) {
		t.Fatalf("expected ErrCeremonyNotFound, got %v", err)
	}
}

func TestPasskeyExclusionsListRegisteredCredentials(t *testing.T) {
	cfg := passkeyTestConfig()
	store := newTestStore()
	engine, _ := newEngineForTest(t, cfg, store, newTestNotifier())
	ctx := context.Background()

	registerTestUser(t, engine, "alice", "alice@example.com", "correct-horse")

	rp := passkeyRelyingParty(cfg)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	stored := registerPasskey(t, engine, rp, &authenticator, &credential, "alice@example.com", "")

	ceremony, err := engine.BeginPasskeyRegistration(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("BeginPasskeyRegistration failed: %v", err)
	}
	if !strings.Contains(string(ceremony.Options), "excludeCredentials") {
		t.Fatal("expected exclude list in second registration options")
	}
	_ = stored
}

func TestPasskeyOperationsRequireEnabledConfig(t *testing.T) {
	store := newTestStore()
	engine, _ := newEngineForTest(t, testConfig(), store, newTestNotifier())
	ctx := context.Background()

	if _, err := engine.BeginPasskeyRegistration(ctx, "alice@example.com"); !errors.Is(err, ErrPasskeysDisabled) {
		t.Fatalf("expected ErrPasskeysDisabled, got %v", err)
	}
	if _, err := engine.BeginPasskeyLogin(ctx, "alice@example.com"); !errors.Is(err, ErrPasskeysDisabled) {
		t.Fatalf("expected ErrPasskeysDisabled, got %v", err)
	}
	if _, err := engine.FinishPasskeyLogin(ctx, "x", nil); !errors.Is(err, ErrPasskeysDisabled) {
		t.Fatalf("expected ErrPasskeysDisabled, got %v", err)
	}
}
