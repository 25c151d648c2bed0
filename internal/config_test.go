package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSyncConfig_UnknownStrategy(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sync.Strategy = "coin_flip"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown strategy should fail validation")
	}
}

func TestSyncConfig_Durations(t *testing.T) {
	cfg := SyncConfig{SkewWindowMinutes: 5, LeaseTTLMinutes: 30}
	if got := cfg.SkewWindow(); got != 5*time.Minute {
		t.Errorf("SkewWindow() = %v, want 5m", got)
	}
	if got := cfg.LeaseTTL(); got != 30*time.Minute {
		t.Errorf("LeaseTTL() = %v, want 30m", got)
	}
}

func TestIndexingConfig_ConcurrencyBound(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Indexing.Concurrency = 1000
	if err := cfg.Validate(); err == nil {
		t.Fatal("absurd concurrency should fail validation")
	}
}

func TestRemoteConfig_BaseURLRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Remote.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty remote base_url should fail validation")
	}
}
