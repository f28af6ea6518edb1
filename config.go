package identity

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by identity APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Login        LoginConfig
	TOTP         TOTPConfig
	WebAuthn     WebAuthnConfig
	Notification NotificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by identity APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by identity APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

// RegistrationConfig defines a public type used by identity APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	RequireUniqueName bool
	DefaultRole       string
}

// LoginConfig defines a public type used by identity APIs.
//
// LoginConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginConfig struct {
	EnableThrottle       bool
	MaxAttempts          int
	Cooldown             time.Duration
	TwoFactorMaxAttempts int
	TwoFactorCooldown    time.Duration
	ThrottleRedisPrefix  string
}

// TOTPConfig defines a public type used by identity APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
	QRSize    int
}

// WebAuthnConfig defines a public type used by identity APIs.
//
// WebAuthnConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type WebAuthnConfig struct {
	Enabled       bool
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	CeremonyTTL   time.Duration
	RedisPrefix   string
}

// NotificationConfig defines a public type used by identity APIs.
//
// NotificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type NotificationConfig struct {
	ValidationURL string
}

// AuditConfig defines a public type used by identity APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by identity APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers override what
// they need and pass the result to Builder.WithConfig. Signing keys are
// deployment secrets and are never defaulted.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "orion-users",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Registration: RegistrationConfig{
			RequireUniqueName: true,
			DefaultRole:       "user",
		},
		Login: LoginConfig{
			EnableThrottle:       true,
			MaxAttempts:          5,
			Cooldown:             15 * time.Minute,
			TwoFactorMaxAttempts: 5,
			TwoFactorCooldown:    5 * time.Minute,
			ThrottleRedisPrefix:  "idl",
		},
		TOTP: TOTPConfig{
			Issuer:    "orion-users",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
			QRSize:    400,
		},
		WebAuthn: WebAuthnConfig{
			Enabled:       false,
			RPID:          "localhost",
			RPDisplayName: "Orion Users",
			RPOrigins:     []string{"http://localhost:8080"},
			CeremonyTTL:   2 * time.Minute,
			RedisPrefix:   "idw",
		},
		Notification: NotificationConfig{
			ValidationURL: "http://localhost:8080/api/users/validateEmail",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.WebAuthn.RPOrigins != nil {
		out.WebAuthn.RPOrigins = append([]string(nil), cfg.WebAuthn.RPOrigins...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}

	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT Issuer is required")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// Registration
	if c.Registration.DefaultRole == "" {
		return errors.New("Registration DefaultRole is required")
	}

	// Login throttle
	if c.Login.EnableThrottle {
		if c.Login.MaxAttempts <= 0 {
			return errors.New("Login MaxAttempts must be > 0 when throttle is enabled")
		}
		if c.Login.Cooldown <= 0 {
			return errors.New("Login Cooldown must be > 0 when throttle is enabled")
		}
		if c.Login.TwoFactorMaxAttempts <= 0 {
			return errors.New("Login TwoFactorMaxAttempts must be > 0 when throttle is enabled")
		}
		if c.Login.TwoFactorCooldown <= 0 {
			return errors.New("Login TwoFactorCooldown must be > 0 when throttle is enabled")
		}
		if c.Login.ThrottleRedisPrefix == "" {
			return errors.New("Login ThrottleRedisPrefix is required when throttle is enabled")
		}
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	if c.TOTP.QRSize <= 0 {
		return errors.New("TOTP QRSize must be > 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	// WebAuthn
	if c.WebAuthn.Enabled {
		if c.WebAuthn.RPID == "" {
			return errors.New("WebAuthn RPID is required when passkeys are enabled")
		}
		if c.WebAuthn.RPDisplayName == "" {
			return errors.New("WebAuthn RPDisplayName is required when passkeys are enabled")
		}
		if len(c.WebAuthn.RPOrigins) == 0 {
			return errors.New("WebAuthn RPOrigins is required when passkeys are enabled")
		}
		if c.WebAuthn.CeremonyTTL <= 0 {
			return errors.New("WebAuthn CeremonyTTL must be > 0")
		}
		if c.WebAuthn.RedisPrefix == "" {
			return errors.New("WebAuthn RedisPrefix is required when passkeys are enabled")
		}
	}

	// Notification
	if c.Notification.ValidationURL == "" {
		return errors.New("Notification ValidationURL is required")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
