package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env helpers back LoadConfig. A blank or malformed variable yields the
// default so one bad flag degrades a deploy instead of crashing it.

func envRaw(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// EnvString reads key, falling back to def when unset or blank.
func EnvString(key, def string) string {
	if v := envRaw(key); v != "" {
		return v
	}
	return def
}

// EnvBool accepts anything strconv.ParseBool does.
func EnvBool(key string, def bool) bool {
	v := envRaw(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// EnvInt accepts positive integers only.
func EnvInt(key string, def int) int {
	v := envRaw(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}

// EnvInt32 accepts non-negative integers; zero is meaningful for pool minimums.
func EnvInt32(key string, def int32) int32 {
	v := envRaw(key)
	if v == "" {
		return def
	}
	if n, err := strconv.ParseInt(v, 10, 32); err == nil && n >= 0 {
		return int32(n)
	}
	return def
}

// EnvDuration accepts Go duration syntax and requires a positive value.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := envRaw(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return def
}
