package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default checkpoint retention is 7 days",
			check:  func(c *Config) bool { return c.CheckpointRetentionDays == 7 },
			expect: "7",
		},
		{
			name:   "default max inline rows is 200",
			check:  func(c *Config) bool { return c.MaxInlineRows == 200 },
			expect: "200",
		},
		{
			name:   "default loop caps match spec",
			check:  func(c *Config) bool { return c.MaxRepairAttempts == 2 && c.MaxFallbackAttempts == 1 && c.MaxPivotAttempts == 2 },
			expect: "2/1/2",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestLLMTokenBudgets(t *testing.T) {
	cfg := &Config{LLMTokenBudgetsJSON: `{"anthropic":100000}`}
	budgets, err := cfg.LLMTokenBudgets()
	if err != nil {
		t.Fatalf("LLMTokenBudgets() error: %v", err)
	}
	if budgets["anthropic"] != 100000 {
		t.Errorf("expected anthropic budget 100000, got %d", budgets["anthropic"])
	}
}
