// Package config provides configuration loading for the refspan application.
// It handles loading the hook policy, lock settings, and other application
// settings from environment variables, an optional local policy file, and
// HashiCorp Vault for centrally distributed policies.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	// EnvLockDir is the directory path used as the mutual-exclusion token.
	EnvLockDir = "REFSPAN_LOCK_DIR"

	// EnvSerialFile is the path of the shared push serial counter file.
	EnvSerialFile = "REFSPAN_SERIAL_FILE"

	// EnvLockRetryInterval enables bounded lock retrying at this interval
	// (Go duration syntax). Unset means a single non-blocking attempt.
	EnvLockRetryInterval = "REFSPAN_LOCK_RETRY_INTERVAL"

	// EnvLockRetryTimeout bounds how long lock retrying may run.
	EnvLockRetryTimeout = "REFSPAN_LOCK_RETRY_TIMEOUT"

	// EnvExcludeTagTips includes tag tips in the already-known exclusion set.
	EnvExcludeTagTips = "REFSPAN_EXCLUDE_TAG_TIPS"

	// EnvHookPolicy is the path to a local hook policy JSON file.
	EnvHookPolicy = "REFSPAN_HOOK_POLICY"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvVaultHookPolicyPath is the path in Vault KV where the hook policy is stored.
	EnvVaultHookPolicyPath = "VAULT_HOOK_POLICY_PATH"

	// EnvVaultHookPolicyMount is the Vault KV mount point (defaults to "secret").
	EnvVaultHookPolicyMount = "VAULT_HOOK_POLICY_MOUNT"
)

// Default values.
const (
	DefaultLogLevel       = "info"
	DefaultLogAppName     = "refspan"
	DefaultLockDir        = "refspan.lock"
	DefaultSerialFile     = "refspan.serial"
	DefaultVaultHookMount = "secret"
)

// Configuration errors.
var (
	// ErrPolicyNotFound indicates the hook policy file does not exist.
	ErrPolicyNotFound = errors.New("hook policy file not found")

	// ErrPolicyInvalid indicates the hook policy is not valid JSON.
	ErrPolicyInvalid = errors.New("hook policy is not valid JSON")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the policy was not found in Vault.
	ErrVaultSecretNotFound = errors.New("hook policy not found in Vault")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Load Vault configuration from environment variables
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// HookPolicy is the centrally distributable part of the configuration:
// the knobs an operator tunes per-host or per-fleet without touching the
// hook scripts themselves.
type HookPolicy struct {
	// ExcludeTagTips includes tag tips in the already-known exclusion set.
	// Default false: tag pushes re-surface commits already announced via a
	// branch.
	ExcludeTagTips bool `json:"exclude_tag_tips"`

	// LockRetryInterval enables bounded lock retrying (duration string,
	// e.g. "1s"). Empty means a single non-blocking attempt.
	LockRetryInterval string `json:"lock_retry_interval,omitempty"`

	// LockRetryTimeout bounds retrying (duration string, e.g. "5m").
	LockRetryTimeout string `json:"lock_retry_timeout,omitempty"`
}

// Config holds all application configuration.
type Config struct {
	// LockDir is the directory path used as the mutual-exclusion token.
	LockDir string

	// SerialFile is the path of the shared push serial counter file.
	SerialFile string

	// LockRetryInterval and LockRetryTimeout select the lock acquisition
	// policy: both zero means one non-blocking attempt (fail fast).
	LockRetryInterval time.Duration
	LockRetryTimeout  time.Duration

	// ExcludeTagTips includes tag tips in the already-known exclusion set.
	ExcludeTagTips bool

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads the application configuration.
//
// Precedence, lowest to highest: built-in defaults, hook policy from Vault
// or a local file, environment variables. Unlike most services a hook must
// come up with no policy source at all, so a missing policy is not an
// error; a present-but-broken one is.
//
// For Vault loading, requires:
//   - VAULT_ADDRESS: Vault server address
//   - VAULT_ROLE_ID: AppRole role ID
//   - VAULT_SECRET_ID: AppRole secret ID
//   - VAULT_HOOK_POLICY_PATH: Path to the policy in Vault
//   - VAULT_HOOK_POLICY_MOUNT: KV mount point (optional, defaults to "secret")
//
// For file loading (fallback):
//   - REFSPAN_HOOK_POLICY: Path to a local JSON file
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
// This function enables dependency injection for testing.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	// Best-effort .env loading for local development; a missing file is fine.
	_ = godotenv.Load()

	cfg := &Config{
		LockDir:    envOr(EnvLockDir, DefaultLockDir),
		SerialFile: envOr(EnvSerialFile, DefaultSerialFile),
		LogLevel:   envOr(EnvLogLevel, DefaultLogLevel),
		LogAppName: envOr(EnvLogAppName, DefaultLogAppName),
	}

	policy, err := loadHookPolicy(ctx, vaultClientFactory)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		if err := applyPolicy(cfg, policy); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadHookPolicy attempts to load the hook policy from Vault first, falling
// back to a local file. Returns (nil, nil) when neither source is configured.
func loadHookPolicy(ctx context.Context, vaultClientFactory VaultClientFactory) (*HookPolicy, error) {
	vaultPath := os.Getenv(EnvVaultHookPolicyPath)
	if vaultPath != "" {
		return loadPolicyFromVault(ctx, vaultClientFactory, vaultPath)
	}

	policyPath := os.Getenv(EnvHookPolicy)
	if policyPath == "" {
		return nil, nil
	}

	return loadPolicyFromFile(policyPath)
}

// loadPolicyFromVault loads the hook policy from Vault KV v2.
func loadPolicyFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	path string,
) (*HookPolicy, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return nil, err
	}

	mount := os.Getenv(EnvVaultHookPolicyMount)
	if mount == "" {
		mount = DefaultVaultHookMount
	}

	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return nil, fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	return parsePolicyFromVault(secretData)
}

// parsePolicyFromVault parses the hook policy from Vault secret data.
// Supports two formats:
// 1. A "policy" key containing a JSON string
// 2. Direct mapping of policy fields in the secret
func parsePolicyFromVault(secretData map[string]interface{}) (*HookPolicy, error) {
	if policyStr, ok := secretData["policy"].(string); ok {
		var policy HookPolicy
		if err := json.Unmarshal([]byte(policyStr), &policy); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPolicyInvalid, err)
		}
		return &policy, nil
	}

	jsonData, err := json.Marshal(secretData)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal secret data: %w", ErrPolicyInvalid, err)
	}

	var policy HookPolicy
	if err := json.Unmarshal(jsonData, &policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyInvalid, err)
	}

	return &policy, nil
}

// loadPolicyFromFile loads the hook policy from the specified file path.
func loadPolicyFromFile(path string) (*HookPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, path)
		}
		return nil, fmt.Errorf("failed to read hook policy: %w", err)
	}

	var policy HookPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolicyInvalid, err)
	}

	return &policy, nil
}

// applyPolicy folds a loaded policy into the configuration.
func applyPolicy(cfg *Config, policy *HookPolicy) error {
	cfg.ExcludeTagTips = policy.ExcludeTagTips

	if policy.LockRetryInterval != "" {
		interval, err := time.ParseDuration(policy.LockRetryInterval)
		if err != nil {
			return fmt.Errorf("%w: lock_retry_interval: %w", ErrPolicyInvalid, err)
		}
		cfg.LockRetryInterval = interval
	}
	if policy.LockRetryTimeout != "" {
		timeout, err := time.ParseDuration(policy.LockRetryTimeout)
		if err != nil {
			return fmt.Errorf("%w: lock_retry_timeout: %w", ErrPolicyInvalid, err)
		}
		cfg.LockRetryTimeout = timeout
	}
	return nil
}

// applyEnvOverrides applies environment variables on top of any policy.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvExcludeTagTips); v != "" {
		exclude, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvExcludeTagTips, v, err)
		}
		cfg.ExcludeTagTips = exclude
	}

	if v := os.Getenv(EnvLockRetryInterval); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvLockRetryInterval, v, err)
		}
		cfg.LockRetryInterval = interval
	}

	if v := os.Getenv(EnvLockRetryTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvLockRetryTimeout, v, err)
		}
		cfg.LockRetryTimeout = timeout
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
