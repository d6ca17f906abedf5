package config

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/common/env"
)

// Configuration is env-first: every recognized option is read from an
// environment variable carrying the DRAMA_ prefix. When CONFIG_FILE points at
// a JSON file, its values win over the environment on conflict.

const envPrefix = "DRAMA_"

func prefixed(key string) string { return envPrefix + key }

var (
	// SQLDSN selects the relational backend: postgres:// DSN for PostgreSQL,
	// any other non-empty DSN for MySQL, empty for SQLite.
	SQLDSN = env.String(prefixed("SQL_DSN"), "")
	// SQLitePath is the SQLite database location used when SQL_DSN is empty.
	SQLitePath = env.String(prefixed("SQLITE_PATH"), "drama-api.db")
	// SQLiteBusyTimeout bounds SQLite lock waits in milliseconds.
	SQLiteBusyTimeout = env.Int(prefixed("SQLITE_BUSY_TIMEOUT"), 3000)

	// RedisConnString enables the Redis cache layer when set.
	RedisConnString = env.String(prefixed("REDIS_CONN_STRING"), "")

	// ServerPort overrides the --port flag when running inside a container.
	ServerPort = strings.TrimSpace(env.String("PORT", ""))
	// GinMode allows forcing Gin into release mode without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// DebugEnabled toggles verbose structured logging when DRAMA_DEBUG=true.
	DebugEnabled = env.Bool(prefixed("DEBUG"), false)
	// DebugSQLEnabled toggles per-query SQL logging.
	DebugSQLEnabled = env.Bool(prefixed("DEBUG_SQL"), false)

	// StorageBackend selects the artifact store implementation: local or s3.
	StorageBackend = env.String(prefixed("STORAGE_BACKEND"), "local")
	// StorageLocalRoot is the root directory of the local artifact backend.
	StorageLocalRoot = env.String(prefixed("STORAGE_LOCAL_ROOT"), "./artifacts")
	// S3 backend settings; Endpoint may point at any S3-compatible service.
	StorageS3Endpoint = env.String(prefixed("STORAGE_S3_ENDPOINT"), "")
	StorageS3Bucket   = env.String(prefixed("STORAGE_S3_BUCKET"), "")
	StorageS3Region   = env.String(prefixed("STORAGE_S3_REGION"), "us-east-1")
	StorageS3Key      = env.String(prefixed("STORAGE_S3_KEY"), "")
	StorageS3Secret   = env.String(prefixed("STORAGE_S3_SECRET"), "")

	// TierTableOverrides carries per-deployment tier overrides as a JSON object
	// keyed by tier name; absent keys fall back to the built-in table.
	TierTableOverrides = env.String(prefixed("TIER_TABLE_OVERRIDES"), "")

	// RetryMaxAttempts caps stage retries for transient errors.
	RetryMaxAttempts = env.Int(prefixed("RETRY_MAX_ATTEMPTS"), 3)
	// RetryBackoffBase is the base of the exponential stage retry backoff.
	RetryBackoffBase = time.Duration(env.Int(prefixed("RETRY_BACKOFF_BASE_SECONDS"), 1)) * time.Second

	// StageTimeout is the default per-stage wall-clock limit; RenderTimeout
	// applies to the final render stage. Per-stage overrides come from
	// DRAMA_STAGE_TIMEOUT_<STAGE_ID> seconds.
	StageTimeout  = time.Duration(env.Int(prefixed("STAGE_TIMEOUT_SECONDS"), 600)) * time.Second
	RenderTimeout = time.Duration(env.Int(prefixed("STAGE_TIMEOUT_RENDER"), 1800)) * time.Second

	// AuthTokenTTL bounds login-issued session tokens.
	AuthTokenTTL = time.Duration(env.Int(prefixed("AUTH_TOKEN_TTL_SECONDS"), 86400)) * time.Second
	// SessionSecret signs login-issued session tokens. A random secret is
	// generated at startup when unset, which invalidates sessions on restart.
	SessionSecret = env.String(prefixed("SESSION_SECRET"), "")

	// InitialRootAPIKey seeds the bootstrap tenant's API key when set.
	InitialRootAPIKey = env.String(prefixed("INITIAL_ROOT_API_KEY"), "")

	// MaxConcurrentProductions bounds productions advancing at the same time.
	MaxConcurrentProductions = env.Int(prefixed("MAX_CONCURRENT_PRODUCTIONS"), 8)

	// SnapshotRetentionDays is how long production version snapshots are kept.
	SnapshotRetentionDays = env.Int(prefixed("SNAPSHOT_RETENTION_DAYS"), 30)
	// SnapshotPurgeInterval is the cadence of the snapshot purge loop.
	SnapshotPurgeInterval = time.Duration(env.Int(prefixed("SNAPSHOT_PURGE_INTERVAL_SECONDS"), 3600)) * time.Second

	// DefaultItemsPerPage and MaxItemsPerPage bound list pagination.
	DefaultItemsPerPage = env.Int(prefixed("DEFAULT_ITEMS_PER_PAGE"), 20)
	MaxItemsPerPage     = env.Int(prefixed("MAX_ITEMS_PER_PAGE"), 100)

	// StageTimeoutOverrides maps stage ids to override durations, populated
	// from DRAMA_STAGE_TIMEOUT_<STAGE_ID> and the config file.
	StageTimeoutOverrides   = map[string]time.Duration{}
	stageTimeoutOverridesMu sync.RWMutex
)

func init() {
	loadStageTimeoutEnv()
}

func loadStageTimeoutEnv() {
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix+"STAGE_TIMEOUT_") {
			continue
		}
		stage := strings.TrimPrefix(name, envPrefix+"STAGE_TIMEOUT_")
		if stage == "SECONDS" || stage == "" {
			continue
		}
		if secs := env.Int(name, 0); secs > 0 {
			SetStageTimeoutOverride(stage, time.Duration(secs)*time.Second)
		}
	}
}

// SetStageTimeoutOverride registers a per-stage timeout override.
func SetStageTimeoutOverride(stageID string, d time.Duration) {
	stageTimeoutOverridesMu.Lock()
	defer stageTimeoutOverridesMu.Unlock()
	StageTimeoutOverrides[strings.ToUpper(stageID)] = d
}

// StageTimeoutFor returns the effective timeout for the given stage id.
func StageTimeoutFor(stageID string, fallback time.Duration) time.Duration {
	stageTimeoutOverridesMu.RLock()
	defer stageTimeoutOverridesMu.RUnlock()
	if d, ok := StageTimeoutOverrides[strings.ToUpper(stageID)]; ok {
		return d
	}
	return fallback
}

// fileConfig mirrors the recognized configuration keys for the optional JSON
// config file. Pointer fields distinguish "absent" from zero values.
type fileConfig struct {
	SQLDSN *string `json:"db_dsn"`

	Storage *struct {
		Backend *string `json:"backend"`
		Local   *struct {
			Root *string `json:"root"`
		} `json:"local"`
		S3 *struct {
			Endpoint *string `json:"endpoint"`
			Bucket   *string `json:"bucket"`
			Region   *string `json:"region"`
			Key      *string `json:"key"`
			Secret   *string `json:"secret"`
		} `json:"s3"`
	} `json:"storage"`

	TierTableOverrides json.RawMessage `json:"tier_table_overrides"`

	StageTimeoutSeconds map[string]int `json:"stage_timeout_seconds"`

	RetryMaxAttempts        *int `json:"retry_max_attempts"`
	RetryBackoffBaseSeconds *int `json:"retry_backoff_base_seconds"`
	AuthTokenTTLSeconds     *int `json:"auth_token_ttl_seconds"`
}

// LoadConfigFile applies the JSON config file at path over the env-derived
// settings. Explicit file values win on conflict.
func LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}

	if fc.SQLDSN != nil {
		SQLDSN = *fc.SQLDSN
	}
	if fc.Storage != nil {
		if fc.Storage.Backend != nil {
			StorageBackend = *fc.Storage.Backend
		}
		if fc.Storage.Local != nil && fc.Storage.Local.Root != nil {
			StorageLocalRoot = *fc.Storage.Local.Root
		}
		if s3 := fc.Storage.S3; s3 != nil {
			if s3.Endpoint != nil {
				StorageS3Endpoint = *s3.Endpoint
			}
			if s3.Bucket != nil {
				StorageS3Bucket = *s3.Bucket
			}
			if s3.Region != nil {
				StorageS3Region = *s3.Region
			}
			if s3.Key != nil {
				StorageS3Key = *s3.Key
			}
			if s3.Secret != nil {
				StorageS3Secret = *s3.Secret
			}
		}
	}
	if len(fc.TierTableOverrides) > 0 {
		TierTableOverrides = string(fc.TierTableOverrides)
	}
	for stage, secs := range fc.StageTimeoutSeconds {
		if secs > 0 {
			SetStageTimeoutOverride(stage, time.Duration(secs)*time.Second)
		}
	}
	if fc.RetryMaxAttempts != nil {
		RetryMaxAttempts = *fc.RetryMaxAttempts
	}
	if fc.RetryBackoffBaseSeconds != nil {
		RetryBackoffBase = time.Duration(*fc.RetryBackoffBaseSeconds) * time.Second
	}
	if fc.AuthTokenTTLSeconds != nil {
		AuthTokenTTL = time.Duration(*fc.AuthTokenTTLSeconds) * time.Second
	}
	return nil
}
