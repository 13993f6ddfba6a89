package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port int

	// MCUBE click-to-call platform.
	McubeBaseURL  string
	McubeVariants []string

	// VAPI voice-assistant platform.
	VapiBaseURL  string
	VapiVariants []string

	// Remote function that hands out the VAPI key + assistant id.
	CredentialHandoutURL string
	CredentialCachePath  string
	CredentialTTL        time.Duration

	// Dashboard refresh cadence.
	PollInterval time.Duration

	TopKeywords int
	LogLevel    string
}

func Load() Config {
	return Config{
		Port:                 envInt("PORT", 8080),
		McubeBaseURL:         envStr("MCUBE_BASE_URL", "https://api.mcube.com"),
		McubeVariants:        envList("MCUBE_ENDPOINT_VARIANTS", []string{"/api/v1/calls", "/api/calls", "/outbound/calls"}),
		VapiBaseURL:          envStr("VAPI_BASE_URL", "https://api.vapi.ai"),
		VapiVariants:         envList("VAPI_ENDPOINT_VARIANTS", []string{"/call", "/v1/call", "/api/call"}),
		CredentialHandoutURL: envStr("CREDENTIAL_HANDOUT_URL", ""),
		CredentialCachePath:  envStr("CREDENTIAL_CACHE_PATH", ".credentials.json"),
		CredentialTTL:        envDur("CREDENTIAL_TTL_MS", 15*time.Minute),
		PollInterval:         envDur("POLL_INTERVAL_MS", 30*time.Second),
		TopKeywords:          envInt("TOP_KEYWORDS", 10),
		LogLevel:             envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
