package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tvlink/relay/internal/config"
)

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvlink", "config.toml")

	var stdout, stderr bytes.Buffer
	if code := runInit([]string{"--config", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Wrote") {
		t.Errorf("stdout = %q", stdout.String())
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Addr != config.DefaultAddr {
		t.Errorf("Addr = %q", cfg.Addr)
	}

	stdout.Reset()
	if code := runInit([]string{"--config", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("second run exit code %d", code)
	}
	if !strings.Contains(stdout.String(), "already exists") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunInit_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var stdout, stderr bytes.Buffer
	if code := runInit(nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr=%q", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(home, ".tvlink", "config.toml")); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}
