package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables recognised by applyEnvOverrides.
const (
	EnvTimezone       = "DAYPLANNER_TIMEZONE"
	EnvUserTimezone   = "USER_TIMEZONE"
	EnvWorkStart      = "DAYPLANNER_WORK_START"
	EnvWorkEnd        = "DAYPLANNER_WORK_END"
	EnvMinFreeWindow  = "DAYPLANNER_MIN_FREE_WINDOW"
	EnvCalendars      = "DAYPLANNER_CALENDARS"
	EnvTaskLists      = "DAYPLANNER_TASK_LISTS"
	EnvClientID       = "GOOGLE_CLIENT_ID"
	EnvClientSecret   = "GOOGLE_CLIENT_SECRET"
	EnvStore          = "DAYPLANNER_CREDENTIAL_STORE"
	EnvCredentialPath = "DAYPLANNER_CREDENTIAL_PATH"
	EnvValkeyAddr     = "DAYPLANNER_VALKEY_ADDR"
	EnvEncryptionKey  = "DAYPLANNER_ENCRYPTION_KEY"
	EnvMaxAttempts    = "DAYPLANNER_RETRY_MAX_ATTEMPTS"
	EnvQuotaMax       = "DAYPLANNER_QUOTA_MAX_REQUESTS"
	EnvLogLevel       = "DAYPLANNER_LOG_LEVEL"
	EnvLogFormat      = "DAYPLANNER_LOG_FORMAT"
)

// applyEnvOverrides applies environment variable overrides. Unparseable
// numeric values are ignored and leave the file value in place.
func applyEnvOverrides(cfg *Config) {
	if tz := firstEnv(EnvTimezone, EnvUserTimezone); tz != "" {
		cfg.Timezone = tz
	}
	setString(&cfg.WorkStart, EnvWorkStart)
	setString(&cfg.WorkEnd, EnvWorkEnd)
	setDuration(&cfg.MinFreeWindow, EnvMinFreeWindow)
	setList(&cfg.Calendars, EnvCalendars)
	setList(&cfg.TaskLists, EnvTaskLists)

	setString(&cfg.Credential.ClientID, EnvClientID)
	setString(&cfg.Credential.ClientSecret, EnvClientSecret)
	setString(&cfg.Credential.Store, EnvStore)
	setString(&cfg.Credential.Path, EnvCredentialPath)
	setString(&cfg.Credential.ValkeyAddr, EnvValkeyAddr)
	setString(&cfg.Credential.EncryptionKey, EnvEncryptionKey)

	setInt(&cfg.Retry.MaxAttempts, EnvMaxAttempts)
	setInt(&cfg.Quota.MaxRequests, EnvQuotaMax)

	setString(&cfg.Logging.Level, EnvLogLevel)
	setString(&cfg.Logging.Format, EnvLogFormat)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
