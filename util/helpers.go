// Package util provides environment, key, logging, scoring and package helpers shared across the enricher.
//
//revive:disable-next-line:var-naming
package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// GetEnvInt returns an integer env var or the default when unset or malformed
func GetEnvInt(key string, defVal int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(GetEnvDefault(key, ""))); err == nil {
		return n
	}
	return defVal
}

// GetEnvFloat returns a float env var or the default when unset or malformed
func GetEnvFloat(key string, defVal float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(GetEnvDefault(key, "")), 64); err == nil {
		return f
	}
	return defVal
}

// GetEnvBool returns a boolean env var or the default when unset or malformed
func GetEnvBool(key string, defVal bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(GetEnvDefault(key, ""))); err == nil {
		return b
	}
	return defVal
}

// GetEnvDuration returns a duration env var (e.g. "1h", "30s") or the default
func GetEnvDuration(key string, defVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(GetEnvDefault(key, ""))); err == nil {
		return d
	}
	return defVal
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Truncate shortens s to at most max runes
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
