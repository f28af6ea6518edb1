package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func newHSManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("unit-test-secret"),
		Issuer:        "orion-users",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return pub, priv
}

func TestCreateAndParseAccessHS256(t *testing.T) {
	m := newHSManager(t, time.Minute)

	token, err := m.CreateAccess("alice@example.com", "hash-1", []string{"user", "admin"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UPN != "alice@example.com" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected principal claims: %+v", claims)
	}
	if claims.Hash != "hash-1" || claims.Subject != "hash-1" {
		t.Fatalf("expected hash to double as subject, got hash=%q sub=%q", claims.Hash, claims.Subject)
	}
	if len(claims.Groups) != 2 || claims.Groups[0] != "user" || claims.Groups[1] != "admin" {
		t.Fatalf("unexpected groups: %v", claims.Groups)
	}
	if claims.Issuer != "orion-users" {
		t.Fatalf("unexpected issuer: %q", claims.Issuer)
	}
}

func TestCreateAndParseAccessEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "orion-users",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateAccess("alice@example.com", "hash-1", []string{"user"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.Hash != "hash-1" {
		t.Fatalf("unexpected hash claim: %q", claims.Hash)
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	m := newHSManager(t, time.Nanosecond)

	token, err := m.CreateAccess("alice@example.com", "hash-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseAccessRejectsWrongKey(t *testing.T) {
	m := newHSManager(t, time.Minute)
	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("a-different-secret"),
		Issuer:        "orion-users",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateAccess("alice@example.com", "hash-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	if _, err := other.ParseAccess(token); err == nil {
		t.Fatal("expected token signed with a different key to be rejected")
	}
}

func TestParseAccessRejectsCrossAlgorithm(t *testing.T) {
	pub, priv := newEdKeys(t)
	edManager, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "orion-users",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	hsManager := newHSManager(t, time.Minute)

	token, err := hsManager.CreateAccess("alice@example.com", "hash-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	// An HS256 token must never verify against the ed25519 manager.
	if _, err := edManager.ParseAccess(token); err == nil {
		t.Fatal("expected cross-algorithm token to be rejected")
	}
}

func TestParseAccessRejectsWrongIssuer(t *testing.T) {
	issuerA := newHSManager(t, time.Minute)
	issuerB, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("unit-test-secret"),
		Issuer:        "someone-else",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := issuerB.CreateAccess("alice@example.com", "hash-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	if _, err := issuerA.ParseAccess(token); err == nil {
		t.Fatal("expected token with mismatched issuer to be rejected")
	}
}

func TestParseAccessRejectsGarbage(t *testing.T) {
	m := newHSManager(t, time.Minute)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := m.ParseAccess(token); err == nil {
			t.Fatalf("expected %q to be rejected", token)
		}
	}
}

func TestKeyIDRoundTripAndMismatch(t *testing.T) {
	pub, priv := newEdKeys(t)
	signer, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "orion-users",
		KeyID:         "2026-08",
		VerifyKeys:    map[string][]byte{"2026-08": pub},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := signer.CreateAccess("alice@example.com", "hash-1", nil)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := signer.ParseAccess(token); err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}

	otherPub, _ := newEdKeys(t)
	verifier, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		Issuer:        "orion-users",
		VerifyKeys:    map[string][]byte{"2026-09": otherPub},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := verifier.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{
			name: "zero ttl",
			cfg: Config{
				SigningMethod: MethodHS256,
				PrivateKey:    []byte("k"),
			},
		},
		{
			name: "hs256 without key",
			cfg: Config{
				AccessTTL:     time.Minute,
				SigningMethod: MethodHS256,
			},
		},
		{
			name: "ed25519 without verify material",
			cfg: Config{
				AccessTTL:     time.Minute,
				SigningMethod: MethodEd25519,
			},
		},
		{
			name: "unsupported method",
			cfg: Config{
				AccessTTL:     time.Minute,
				SigningMethod: SigningMethod("rs256"),
				PrivateKey:    []byte("k"),
			},
		},
		{
			name: "excessive leeway",
			cfg: Config{
				AccessTTL:     time.Minute,
				SigningMethod: MethodHS256,
				PrivateKey:    []byte("k"),
				Leeway:        5 * time.Minute,
			},
		},
		{
			name: "kid missing from verify set",
			cfg: Config{
				AccessTTL:     time.Minute,
				SigningMethod: MethodHS256,
				PrivateKey:    []byte("k"),
				KeyID:         "a",
				VerifyKeys:    map[string][]byte{"b": []byte("k")},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}
