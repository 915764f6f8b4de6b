package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadReportTTL(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected default report TTL 30, got %d", cfg.ReportCacheTTLSeconds)
	}
}
