package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want %q", cfg.Env, "development")
	}
	if cfg.MaxSessionsPerUser != 5 {
		t.Errorf("MaxSessionsPerUser = %d, want 5", cfg.MaxSessionsPerUser)
	}
	if cfg.BruteForceThreshold != 10 {
		t.Errorf("BruteForceThreshold = %d, want 10", cfg.BruteForceThreshold)
	}
	if cfg.BruteForceBlockThreshold != 20 {
		t.Errorf("BruteForceBlockThreshold = %d, want 20", cfg.BruteForceBlockThreshold)
	}
	if cfg.MultiSourceThreshold != 3 {
		t.Errorf("MultiSourceThreshold = %d, want 3", cfg.MultiSourceThreshold)
	}
	if cfg.StalledAttackThreshold != 15 {
		t.Errorf("StalledAttackThreshold = %d, want 15", cfg.StalledAttackThreshold)
	}
	if cfg.AuditMaxEntries != 10000 {
		t.Errorf("AuditMaxEntries = %d, want 10000", cfg.AuditMaxEntries)
	}
	if cfg.AuditRetentionDays != 90 {
		t.Errorf("AuditRetentionDays = %d, want 90", cfg.AuditRetentionDays)
	}
	if cfg.AlertKafkaTopic != "atg-alerts" {
		t.Errorf("AlertKafkaTopic = %q, want %q", cfg.AlertKafkaTopic, "atg-alerts")
	}
	if got := cfg.SessionTTLDuration(); got != 30*time.Minute {
		t.Errorf("SessionTTLDuration = %v, want 30m", got)
	}
	if got := cfg.SweepInterval(); got != 60*time.Second {
		t.Errorf("SweepInterval = %v, want 60s", got)
	}
	if got := cfg.BruteForceWindowDuration(); got != 5*time.Minute {
		t.Errorf("BruteForceWindowDuration = %v, want 5m", got)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("SESSION_TTL", "15m")
	os.Setenv("MAX_SESSIONS_PER_USER", "3")
	os.Setenv("BRUTE_FORCE_WINDOW", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxSessionsPerUser != 3 {
		t.Errorf("MaxSessionsPerUser = %d, want 3", cfg.MaxSessionsPerUser)
	}
	if got := cfg.SessionTTLDuration(); got != 15*time.Minute {
		t.Errorf("SessionTTLDuration = %v, want 15m", got)
	}
	if got := cfg.BruteForceWindowDuration(); got != 10*time.Minute {
		t.Errorf("BruteForceWindowDuration = %v, want 10m", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero session cap", map[string]string{"MAX_SESSIONS_PER_USER": "0"}},
		{"block threshold below alert threshold", map[string]string{"BRUTE_FORCE_BLOCK_THRESHOLD": "5"}},
		{"off-hours start out of range", map[string]string{"OFF_HOURS_START": "24"}},
		{"bad window duration", map[string]string{"MULTI_SOURCE_WINDOW": "soon"}},
		{"zero audit ring", map[string]string{"AUDIT_MAX_ENTRIES": "0"}},
		{"production without token secret", map[string]string{"APP_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load: expected error, got nil")
			}
		})
	}
}

func TestAlertKafkaBrokersList(t *testing.T) {
	cfg := &Config{AlertKafkaBrokers: " localhost:9092 , ,broker2:9092"}
	got := cfg.AlertKafkaBrokersList()
	if len(got) != 2 || got[0] != "localhost:9092" || got[1] != "broker2:9092" {
		t.Errorf("AlertKafkaBrokersList = %v, want [localhost:9092 broker2:9092]", got)
	}

	var nilCfg *Config
	if nilCfg.AlertKafkaBrokersList() != nil {
		t.Error("nil config should return nil broker list")
	}
}
