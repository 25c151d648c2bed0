package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Port  int    `yaml:"port"`
}

type validatedConfig struct {
	Name string `yaml:"name"`
}

func (c *validatedConfig) Validate() error {
	if c.Name == "" {
		return os.ErrInvalid
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "name: othala\nport: 9000\n")
	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "othala" || cfg.Port != 9000 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REMOTE_TOKEN", "s3cret")
	path := writeFile(t, "token: ${TEST_REMOTE_TOKEN}\n")
	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "s3cret" {
		t.Errorf("token = %q", cfg.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "name: [unclosed\n")
	var cfg testConfig
	if err := Load(path, &cfg); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("err = %v, want parse failure", err)
	}
}

func TestLoad_RunsValidator(t *testing.T) {
	path := writeFile(t, "name: \"\"\n")
	var cfg validatedConfig
	if err := Load(path, &cfg); err == nil || !strings.Contains(err.Error(), "validation") {
		t.Fatalf("err = %v, want validation failure", err)
	}
}

func TestLoadIfExists_MissingKeepsDefaults(t *testing.T) {
	cfg := testConfig{Name: "default", Port: 8080}
	if err := LoadIfExists(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "default" || cfg.Port != 8080 {
		t.Errorf("defaults overwritten: %+v", cfg)
	}
}

func TestLoadIfExists_PresentLoads(t *testing.T) {
	path := writeFile(t, "name: fromfile\n")
	cfg := testConfig{Name: "default"}
	if err := LoadIfExists(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "fromfile" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestMustLoad_PanicsOnFailure(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	var cfg testConfig
	MustLoad(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
}
