package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stake-plus/postoracle/src/data"
)

// GetSetting retrieves a setting with env fallback
func GetSetting(name, envKey, defaultValue string) string {
	val := strings.TrimSpace(data.GetSetting(name))
	if val == "" {
		val = strings.TrimSpace(os.Getenv(envKey))
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

// The typed getters below return the default for an unset value. A malformed value also
// yields the default and is recorded in invalid under envKey, so Validate can report it.

func getBoolSetting(name, envKey string, defaultValue bool, invalid map[string]string) bool {
	raw := GetSetting(name, envKey, "")
	switch strings.ToLower(raw) {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	invalid[envKey] = "not a boolean: " + raw
	return defaultValue
}

func getIntSetting(name, envKey string, defaultValue int, invalid map[string]string) int {
	raw := GetSetting(name, envKey, "")
	if raw == "" {
		return defaultValue
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	invalid[envKey] = "not a positive integer: " + raw
	return defaultValue
}

// getDurationSetting accepts Go durations ("5s") or bare seconds ("5").
func getDurationSetting(name, envKey string, defaultValue time.Duration, invalid map[string]string) time.Duration {
	raw := GetSetting(name, envKey, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	invalid[envKey] = "not a positive duration: " + raw
	return defaultValue
}

func parseCSV(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
