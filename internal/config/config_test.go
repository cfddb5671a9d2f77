package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseServerConfig_Defaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("expected Addr to be :8080, got %s", cfg.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel to be info, got %s", cfg.LogLevel)
	}
	if cfg.BulkSlots != 3 || cfg.InteractiveSlots != 1 {
		t.Errorf("expected 3 bulk / 1 interactive slots, got %d/%d", cfg.BulkSlots, cfg.InteractiveSlots)
	}
	if cfg.MinChunkBytes != 2*mib || cfg.DefaultChunkBytes != 5*mib || cfg.MaxChunkBytes != 50*mib {
		t.Errorf("unexpected chunk bounds: %d/%d/%d", cfg.MinChunkBytes, cfg.DefaultChunkBytes, cfg.MaxChunkBytes)
	}
	if cfg.SampleWindow != 5*time.Second {
		t.Errorf("expected 5s sample window, got %s", cfg.SampleWindow)
	}
	if cfg.LowBps != 2*mib || cfg.HighBps != 10*mib {
		t.Errorf("unexpected thresholds: low=%d high=%d", cfg.LowBps, cfg.HighBps)
	}
}

func TestParseServerConfig_Flags(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{
		"-addr", ":9090",
		"-bulk-slots", "5",
		"-max-chunk-mb", "32",
		"-bulk-rate-mbps", "8",
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("expected Addr to be :9090, got %s", cfg.Addr)
	}
	if cfg.BulkSlots != 5 {
		t.Errorf("expected BulkSlots 5, got %d", cfg.BulkSlots)
	}
	if cfg.MaxChunkBytes != 32*mib {
		t.Errorf("expected MaxChunkBytes 32 MiB, got %d", cfg.MaxChunkBytes)
	}
	if cfg.BulkRateBps != 8*mib {
		t.Errorf("expected BulkRateBps 8 MiB/s, got %d", cfg.BulkRateBps)
	}
}

func TestParseServerConfig_EnvFallback(t *testing.T) {
	os.Clearenv()

	os.Setenv("VAULT_ADDR", ":7070")
	os.Setenv("VAULT_BUCKET_URL", "s3://media?region=eu-west-1")
	defer os.Unsetenv("VAULT_ADDR")
	defer os.Unsetenv("VAULT_BUCKET_URL")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Addr != ":7070" {
		t.Errorf("expected Addr to be :7070, got %s", cfg.Addr)
	}
	if cfg.BucketURL != "s3://media?region=eu-west-1" {
		t.Errorf("expected bucket URL from env, got %s", cfg.BucketURL)
	}
}

func TestParseServerConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()

	os.Setenv("VAULT_ADDR", ":7070")
	defer os.Unsetenv("VAULT_ADDR")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{"-addr", ":9090"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("expected Addr to be :9090 (from flag), got %s", cfg.Addr)
	}
}

func TestParseServerConfig_File(t *testing.T) {
	os.Clearenv()

	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	data := []byte("addr: \":6060\"\nbulk_slots: 4\nmax_chunk_mb: 25\nsample_window: 10s\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{"-config", path})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Addr != ":6060" {
		t.Errorf("expected Addr from file, got %s", cfg.Addr)
	}
	if cfg.BulkSlots != 4 {
		t.Errorf("expected BulkSlots 4, got %d", cfg.BulkSlots)
	}
	if cfg.MaxChunkBytes != 25*mib {
		t.Errorf("expected MaxChunkBytes 25 MiB, got %d", cfg.MaxChunkBytes)
	}
	if cfg.SampleWindow != 10*time.Second {
		t.Errorf("expected 10s sample window, got %s", cfg.SampleWindow)
	}
}

func TestParseServerConfig_FlagsOverrideFile(t *testing.T) {
	os.Clearenv()

	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	if err := os.WriteFile(path, []byte("addr: \":6060\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{"-config", path, "-addr", ":9191"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Addr != ":9191" {
		t.Errorf("expected flag to win over file, got %s", cfg.Addr)
	}
}

func TestParseServerConfig_ZeroSlotsRejected(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseServerConfigWithFlagSet(fs, []string{"-bulk-slots", "0", "-interactive-slots", "0"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// InteractiveSlots is clamped to 1, so the table is never empty.
	if cfg.InteractiveSlots != 1 {
		t.Errorf("expected interactive slots clamped to 1, got %d", cfg.InteractiveSlots)
	}
}

func TestParseClientConfig_Defaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseClientConfigWithFlagSet(fs, []string{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("expected default server URL, got %s", cfg.ServerURL)
	}
}
