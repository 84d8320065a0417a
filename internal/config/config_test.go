package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir moves into dir for the test so Load doesn't pick up a stray .env.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matching.Threshold != 2 {
		t.Errorf("threshold = %d", cfg.Matching.Threshold)
	}
	if cfg.Detection.ConfidenceFloor != 0.25 || cfg.Detection.PadX != 0.10 || cfg.Detection.PadY != 0.10 {
		t.Errorf("detection = %+v", cfg.Detection)
	}
	if !cfg.Detection.FilterByClass || cfg.Detection.PlateClassID != 0 {
		t.Errorf("class filter = %+v", cfg.Detection)
	}
	if cfg.Session.Mode != "multi" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("session/server = %+v %+v", cfg.Session, cfg.Server)
	}
	if cfg.Database.Enabled() || cfg.Auth.Enabled() {
		t.Error("optional features should be off by default")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "platetrack.yaml")
	yaml := `
matching:
  threshold: 1
detection:
  pad_x: 0.2
  plate_class_id: 3
auth:
  jwt_secret: file-secret
  operators:
    - username: CGS_Company
      password_hash: "$2a$10$abc"
      role: admin
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLATETRACK_MATCHING_THRESHOLD", "3")
	t.Setenv("PLATETRACK_REGISTRY_PATH", "/var/lib/platetrack/plates.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matching.Threshold != 3 {
		t.Errorf("env should win over file, threshold = %d", cfg.Matching.Threshold)
	}
	if cfg.Detection.PadX != 0.2 || cfg.Detection.PlateClassID != 3 {
		t.Errorf("detection = %+v", cfg.Detection)
	}
	if cfg.Registry.Path != "/var/lib/platetrack/plates.json" {
		t.Errorf("registry path = %q", cfg.Registry.Path)
	}
	if !cfg.Auth.Enabled() || len(cfg.Auth.Operators) != 1 || cfg.Auth.Operators[0].Role != "admin" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]func(c *Config){
		"negative threshold": func(c *Config) { c.Matching.Threshold = -1 },
		"floor above one":    func(c *Config) { c.Detection.ConfidenceFloor = 1.5 },
		"negative padding":   func(c *Config) { c.Detection.PadY = -0.1 },
		"unknown backend":    func(c *Config) { c.Recognizer.Backend = "paddle" },
		"unknown mode":       func(c *Config) { c.Session.Mode = "batch" },
		"queue without url":  func(c *Config) { c.Queue.Enabled = true },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load("does-not-exist.yaml")
	if err == nil || !strings.Contains(err.Error(), "does-not-exist.yaml") {
		t.Errorf("err = %v", err)
	}
}
