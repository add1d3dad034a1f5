package runtime

import (
	"os"
	"testing"
	"time"
)

func TestResolveInt(t *testing.T) {
	tests := []struct {
		name     string
		cfgValue int
		envKey   string
		envValue string
		fallback int
		want     int
	}{
		{"cfg value wins", 42, "INGEST_WORKERS", "", 10, 42},
		{"env value wins when cfg is zero", 0, "INGEST_WORKERS", "99", 10, 99},
		{"fallback when both empty", 0, "INGEST_WORKERS", "", 10, 10},
		{"cfg zero and env invalid", 0, "INGEST_WORKERS", "notanumber", 10, 10},
		{"negative cfg falls through", -1, "INGEST_WORKERS", "", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("INGEST_WORKERS", tt.envValue)
			} else {
				os.Unsetenv("INGEST_WORKERS")
			}
			got := ResolveInt(tt.cfgValue, tt.envKey, tt.fallback)
			if got != tt.want {
				t.Errorf("ResolveInt(%d, %q, %d) = %d, want %d", tt.cfgValue, tt.envKey, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestResolveDuration(t *testing.T) {
	tests := []struct {
		name     string
		cfgValue time.Duration
		envKey   string
		envValue string
		fallback time.Duration
		want     time.Duration
	}{
		{"cfg value wins", 5 * time.Second, "INGEST_RETRY_BUDGET", "", time.Second, 5 * time.Second},
		{"env value wins", 0, "INGEST_RETRY_BUDGET", "30s", time.Second, 30 * time.Second},
		{"fallback when both empty", 0, "INGEST_RETRY_BUDGET", "", time.Second, time.Second},
		{"invalid env falls to fallback", 0, "INGEST_RETRY_BUDGET", "notaduration", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("INGEST_RETRY_BUDGET", tt.envValue)
			} else {
				os.Unsetenv("INGEST_RETRY_BUDGET")
			}
			got := ResolveDuration(tt.cfgValue, tt.envKey, tt.fallback)
			if got != tt.want {
				t.Errorf("ResolveDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveString(t *testing.T) {
	tests := []struct {
		name     string
		cfgValue string
		envKey   string
		envValue string
		fallback string
		want     string
	}{
		{"cfg value wins", "from-cfg", "LOG_LEVEL", "", "default", "from-cfg"},
		{"env value wins", "", "LOG_LEVEL", "from-env", "default", "from-env"},
		{"fallback when both empty", "", "LOG_LEVEL", "", "default", "default"},
		{"whitespace-only cfg falls through", "  ", "LOG_LEVEL", "from-env", "default", "from-env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("LOG_LEVEL", tt.envValue)
			} else {
				os.Unsetenv("LOG_LEVEL")
			}
			got := ResolveString(tt.cfgValue, tt.envKey, tt.fallback)
			if got != tt.want {
				t.Errorf("ResolveString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveBool(t *testing.T) {
	tests := []struct {
		name     string
		cfgValue bool
		envKey   string
		envValue string
		want     bool
	}{
		{"cfg true, no env", true, "ALLOW_UNSIGNED_EVENTS", "", true},
		{"cfg false, no env", false, "ALLOW_UNSIGNED_EVENTS", "", false},
		{"env overrides cfg true", true, "ALLOW_UNSIGNED_EVENTS", "false", false},
		{"env overrides cfg false", false, "ALLOW_UNSIGNED_EVENTS", "true", true},
		{"env 1 is true", false, "ALLOW_UNSIGNED_EVENTS", "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("ALLOW_UNSIGNED_EVENTS", tt.envValue)
			} else {
				os.Unsetenv("ALLOW_UNSIGNED_EVENTS")
			}
			got := ResolveBool(tt.cfgValue, tt.envKey)
			if got != tt.want {
				t.Errorf("ResolveBool(%v, %q) = %v, want %v", tt.cfgValue, tt.envKey, got, tt.want)
			}
		})
	}
}
