package identity

import (
	"testing"
	"time"
)

func rfcTestManager(digits int, algorithm string, skew int) *totpManager {
	return newTOTPManager(TOTPConfig{
		Issuer:    "orion-users",
		Digits:    digits,
		Period:    30,
		Algorithm: algorithm,
		Skew:      skew,
	})
}

func TestTOTPVerifyRFCVectorsSHA1(t *testing.T) {
	m := rfcTestManager(8, "SHA1", 0)
	secret := totpBase32.EncodeToString([]byte("12345678901234567890"))
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA1 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA256(t *testing.T) {
	m := rfcTestManager(8, "SHA256", 0)
	secret := totpBase32.EncodeToString([]byte("12345678901234567890123456789012"))
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	}

	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA256 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA512(t *testing.T) {
	m := rfcTestManager(8, "SHA512", 0)
	secret := totpBase32.EncodeToString([]byte("1234567890123456789012345678901234567890123456789012345678901234"))
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	}

	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA512 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPDriftWindowAcceptsAdjacentStep(t *testing.T) {
	m := rfcTestManager(6, "SHA1", 1)
	raw := []byte("12345678901234567890")
	secret := totpBase32.EncodeToString(raw)
	now := time.Unix(1234567890, 0)

	prevCounter := (now.Unix() / 30) - 1
	code, err := hotpCode(raw, prevCounter, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	ok, err := m.VerifyCode(secret, code, now)
	if err != nil || !ok {
		t.Fatalf("expected skew code accepted, ok=%v err=%v", ok, err)
	}
}

func TestTOTPZeroSkewRejectsAdjacentStep(t *testing.T) {
	m := rfcTestManager(6, "SHA1", 0)
	raw := []byte("12345678901234567890")
	secret := totpBase32.EncodeToString(raw)
	now := time.Unix(1234567890, 0)

	prevCounter := (now.Unix() / 30) - 1
	code, err := hotpCode(raw, prevCounter, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	ok, err := m.VerifyCode(secret, code, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected adjacent-step code to be rejected with zero skew")
	}
}

func TestTOTPWrongDigitsRejected(t *testing.T) {
	m := rfcTestManager(6, "SHA1", 1)
	secret := totpBase32.EncodeToString([]byte("12345678901234567890"))

	for _, code := range []string{"12345678", "12345", "abcdef", ""} {
		ok, err := m.VerifyCode(secret, code, time.Now())
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", code, err)
		}
		if ok {
			t.Fatalf("expected code %q to be rejected", code)
		}
	}
}

func TestTOTPMalformedSecretRejected(t *testing.T) {
	m := rfcTestManager(6, "SHA1", 1)

	if _, err := m.VerifyCode("not base32!!", "123456", time.Now()); err == nil {
		t.Fatal("expected error for malformed secret")
	}
}

func TestTOTPGenerateSecretShape(t *testing.T) {
	m := rfcTestManager(6, "SHA1", 1)

	first, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	second, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	if len(first) != 32 || len(second) != 32 {
		t.Fatalf("expected 32-character secrets, got %d and %d", len(first), len(second))
	}
	if first == second {
		t.Fatal("expected distinct secrets")
	}
	if _, err := totpBase32.DecodeString(first); err != nil {
		t.Fatalf("secret does not decode as unpadded base32: %v", err)
	}
}

func TestTOTPProvisionURIFormat(t *testing.T) {
	m := rfcTestManager(6, "SHA1", 1)

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")
	want := "otpauth://totp/orion-users%3Aalice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=orion-users"
	if uri != want {
		t.Fatalf("unexpected URI:\n got %s\nwant %s", uri, want)
	}
}

func TestTOTPProvisionURIEscapesSpaces(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "Orion Users",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")
	want := "otpauth://totp/Orion%20Users%3Aalice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=Orion%20Users"
	if uri != want {
		t.Fatalf("unexpected URI:\n got %s\nwant %s", uri, want)
	}
}
