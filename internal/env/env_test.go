package env

import (
	"errors"
	"testing"
	"time"
)

type testConfig struct {
	Name     string        `env:"ENVTEST_NAME"`
	Count    int           `env:"ENVTEST_COUNT"`
	Rate     float64       `env:"ENVTEST_RATE"`
	Enabled  bool          `env:"ENVTEST_ENABLED"`
	Interval time.Duration `env:"ENVTEST_INTERVAL"`
}

func TestLoad_ParsesSupportedTypes(t *testing.T) {
	t.Setenv("ENVTEST_NAME", "worker-1")
	t.Setenv("ENVTEST_COUNT", "42")
	t.Setenv("ENVTEST_RATE", "0.35")
	t.Setenv("ENVTEST_ENABLED", "true")
	t.Setenv("ENVTEST_INTERVAL", "1m30s")

	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "worker-1" {
		t.Errorf("Name = %q, want worker-1", cfg.Name)
	}
	if cfg.Count != 42 {
		t.Errorf("Count = %d, want 42", cfg.Count)
	}
	if cfg.Rate != 0.35 {
		t.Errorf("Rate = %v, want 0.35", cfg.Rate)
	}
	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.Interval != 90*time.Second {
		t.Errorf("Interval = %v, want 1m30s", cfg.Interval)
	}
}

func TestLoad_UnsetLeavesZeroValue(t *testing.T) {
	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Count != 0 || cfg.Name != "" {
		t.Errorf("expected zero values, got %+v", cfg)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("ENVTEST_COUNT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	if err == nil {
		t.Fatal("expected error for invalid int")
	}
	var invalid ErrInvalidValue
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidValue, got %T", err)
	}
	if invalid.EnvVar != "ENVTEST_COUNT" {
		t.Errorf("EnvVar = %q, want ENVTEST_COUNT", invalid.EnvVar)
	}
}

func TestLoad_RejectsNonStructPointer(t *testing.T) {
	var n int
	if err := Load(&n); err == nil {
		t.Fatal("expected error for non-struct pointer")
	}
	if err := Load(testConfig{}); err == nil {
		t.Fatal("expected error for non-pointer")
	}
}

type validatedConfig struct {
	Limit int `env:"ENVTEST_LIMIT"`
}

func (c *validatedConfig) Validate() error {
	if c.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	return nil
}

type outerConfig struct {
	Inner validatedConfig
}

func TestLoad_ValidatesNestedStructs(t *testing.T) {
	t.Setenv("ENVTEST_LIMIT", "-1")

	var cfg outerConfig
	if err := Load(&cfg); err == nil {
		t.Fatal("expected nested Validate error")
	}
}

func TestTruthy(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "TRUE": true, "yes": true, "on": true,
		"0": false, "false": false, "no": false, "": false, "garbage": false,
	}
	for val, want := range cases {
		t.Setenv("ENVTEST_TRUTHY", val)
		if got := Truthy("ENVTEST_TRUTHY"); got != want {
			t.Errorf("Truthy(%q) = %v, want %v", val, got, want)
		}
	}
}
