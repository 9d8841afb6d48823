// ABOUTME: Tests for configuration loading
// ABOUTME: Defaults without a file, file overrides, and validation errors
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != 5901 {
		t.Errorf("expected default port 5901, got %d", cfg.ListenPort)
	}
	if cfg.SampleRate != 44100 || cfg.Channels != 2 {
		t.Errorf("unexpected default format %d/%d", cfg.SampleRate, cfg.Channels)
	}
	if cfg.SSDPWindow != 4*time.Second {
		t.Errorf("expected 4s discovery window, got %v", cfg.SSDPWindow)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %q", cfg.LogLevel)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "hearcast.yaml")
	body := "listen_port: 8080\nstream_name: office\nbuffer_seconds: 8\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.ListenPort)
	}
	if cfg.StreamName != "office" {
		t.Errorf("expected stream name office, got %q", cfg.StreamName)
	}
	if cfg.BufferSeconds != 8 {
		t.Errorf("expected 8s buffer, got %d", cfg.BufferSeconds)
	}
	// untouched keys keep defaults
	if cfg.Channels != 2 {
		t.Errorf("expected default channels, got %d", cfg.Channels)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port out of range", "listen_port: 70000\n"},
		{"zero sample rate", "sample_rate: 0\n"},
		{"zero channels", "channels: 0\n"},
		{"zero buffer", "buffer_seconds: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			path := filepath.Join(t.TempDir(), "hearcast.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	viper.Reset()
	if _, err := Load("/nonexistent/hearcast.yaml"); err == nil {
		t.Error("expected error for explicit missing file")
	}
}
