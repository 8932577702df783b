package config

import "testing"

func TestDefault_PassesValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://localhost/shiftengine"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected the default profile plus a DSN to validate, got %v", err)
	}
}

func TestEngineValidate_RejectsNonPositiveAdvanceDays(t *testing.T) {
	e := Default().Engine
	e.AdvanceDays = 0
	if err := e.Validate(); err == nil {
		t.Fatal("expected an error for a zero advance_days")
	}
}

func TestEngineValidate_RejectsUnknownTimeZone(t *testing.T) {
	e := Default().Engine
	e.SessionTimeZone = "Not/A_Zone"
	if err := e.Validate(); err == nil {
		t.Fatal("expected an error for an unresolvable time zone")
	}
}

func TestDatabaseValidate_RequiresDSN(t *testing.T) {
	d := Default().Database
	if err := d.Validate(); err == nil {
		t.Fatal("expected an error when database_dsn is empty")
	}
}

func TestDatabaseValidate_RejectsMinConnsAboveMax(t *testing.T) {
	d := Default().Database
	d.DSN = "postgres://localhost/shiftengine"
	d.MinConns = 20
	d.MaxConns = 10
	if err := d.Validate(); err == nil {
		t.Fatal("expected an error when min_conns exceeds max_conns")
	}
}

func TestHTTPValidate_RequiresAPIKeyWhenEnabled(t *testing.T) {
	h := Default().HTTP
	h.Enabled = true
	h.APIKey = ""
	if err := h.Validate(); err == nil {
		t.Fatal("expected an error when http is enabled without an api key")
	}
}

func TestHTTPValidate_DisabledDoesNotRequireAPIKey(t *testing.T) {
	h := Default().HTTP
	h.Enabled = false
	if err := h.Validate(); err != nil {
		t.Fatalf("expected a disabled control plane to validate without a key, got %v", err)
	}
}

func TestConfigValidate_PropagatesFirstSectionError(t *testing.T) {
	cfg := Default()
	cfg.Engine.AdvanceDays = -1
	cfg.Database.DSN = "postgres://localhost/shiftengine"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected the engine section's validation error to propagate")
	}
}
