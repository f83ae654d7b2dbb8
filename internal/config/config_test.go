package config

import (
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "test.db")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://quillnote.app" {
		t.Errorf("Expected default origin, got %v", cfg.AllowedOrigins)
	}
	if cfg.AdminReset {
		t.Errorf("Expected admin reset disabled by default")
	}
}

func TestNew_MissingRequiredAggregates(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := New()
	if err == nil {
		t.Fatalf("Expected error for missing configuration")
	}

	// Both problems should be reported at once.
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("Expected DATABASE_URL in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "STRIPE_WEBHOOK_SECRET") {
		t.Errorf("Expected STRIPE_WEBHOOK_SECRET in error, got %v", err)
	}
}

func TestNew_ParsesOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("Expected 2 origins, got %v", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Expected trimmed origins, got %v", cfg.AllowedOrigins)
	}
}

func TestNew_AdminReset(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_RESET", "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !cfg.AdminReset {
		t.Errorf("Expected admin reset enabled")
	}
}
