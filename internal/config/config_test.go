package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
openai:
  api_key: sk-test
  model: gpt-4o-mini
engine:
  max_tool_rounds: 3
triggers:
  - name: morning_weather
    cron: "30 7 * * *"
    prompt: "How will the weather be today?"
    misfire_grace_sec: 600
tools:
  energy:
    evcc_url: http://evcc.local:7070
home:
  latitude: 50.11
  longitude: 8.68
  timezone: Europe/Berlin
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("Telegram.Token = %q", cfg.Telegram.Token)
	}
	if cfg.Engine.MaxToolRounds != 3 {
		t.Errorf("MaxToolRounds = %d, want 3", cfg.Engine.MaxToolRounds)
	}
	// Untouched fields keep their defaults.
	if cfg.Engine.ProviderRetries != 2 {
		t.Errorf("ProviderRetries = %d, want default 2", cfg.Engine.ProviderRetries)
	}
	if cfg.OpenAI.TranscribeModel != "whisper-1" {
		t.Errorf("TranscribeModel = %q, want whisper-1", cfg.OpenAI.TranscribeModel)
	}
	if len(cfg.Triggers) != 1 {
		t.Fatalf("len(Triggers) = %d, want 1", len(cfg.Triggers))
	}
	if cfg.Triggers[0].Cron != "30 7 * * *" {
		t.Errorf("Triggers[0].Cron = %q", cfg.Triggers[0].Cron)
	}
	if cfg.Tools.Energy.EVCCURL != "http://evcc.local:7070" {
		t.Errorf("EVCCURL = %q", cfg.Tools.Energy.EVCCURL)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("Location = %v", cfg.Location())
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("HAUSGEIST_TEST_TOKEN", "999:secret")
	path := writeConfig(t, "telegram:\n  token: ${HAUSGEIST_TEST_TOKEN}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "999:secret" {
		t.Errorf("token = %q, want env-expanded value", cfg.Telegram.Token)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
