package internal

import (
	"strings"
	"testing"
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

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSNSConfig_RequiredWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Alerts.SNS.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled SNS without region/topic should fail")
	}
	cfg.Alerts.SNS.Region = "eu-west-1"
	cfg.Alerts.SNS.TopicARN = "arn:aws:sns:eu-west-1:123456789012:stencil"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete SNS config should pass: %v", err)
	}
}

func TestSchedulerConfig_SkippedWhenDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scheduler.RetryCron = "every now and then"
	if err := cfg.Validate(); err == nil {
		t.Fatal("bad cron should fail while enabled")
	}
	cfg.Scheduler.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled scheduler should not be validated: %v", err)
	}
}

func TestCacheConfig_NegativeRetryLimit(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Cache.RetryLimit = -1
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "cache:") {
		t.Fatalf("unexpected error: %v", err)
	}
}
