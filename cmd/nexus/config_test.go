package main

import (
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/nexus/internal/config"
)

func TestGetConfigValue_AllKeys(t *testing.T) {
	c := config.Default()
	for _, key := range configKeys {
		if _, err := getConfigValue(c, key); err != nil {
			t.Errorf("getConfigValue(%q) error = %v", key, err)
		}
	}

	if _, err := getConfigValue(c, "nope.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(*config.Config) bool
		wantErr bool
	}{
		{"api.base_url", "http://swarm:9000/", func(c *config.Config) bool { return c.API.BaseURL == "http://swarm:9000" }, false},
		{"pipeline.stage_dwell", "250ms", func(c *config.Config) bool { return c.Pipeline.StageDwell == 250*time.Millisecond }, false},
		{"feed.reconnect", "true", func(c *config.Config) bool { return c.Feed.Reconnect }, false},
		{"AUTOPILOT.ENABLED", "1", func(c *config.Config) bool { return c.Autopilot.Enabled }, false},
		{"autopilot.period", "soon", nil, true},
		{"feed.reconnect", "maybe", nil, true},
		{"unknown", "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			c := config.Default()
			err := setConfigValue(c, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("setConfigValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(c) {
				t.Errorf("value for %s not applied", tt.key)
			}
		})
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := config.Default()
	if err := setConfigValue(c, "feed.poll_interval", "3s"); err != nil {
		t.Fatal(err)
	}
	got, err := getConfigValue(c, "feed.poll_interval")
	if err != nil {
		t.Fatal(err)
	}
	if got != "3s" {
		t.Errorf("feed.poll_interval = %q, want 3s", got)
	}
}

func TestConfigTree_YAML(t *testing.T) {
	out, err := yaml.Marshal(configTree(config.Default()))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]map[string]string
	if err := yaml.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["pipeline"]["stage_dwell"] != "800ms" {
		t.Errorf("pipeline.stage_dwell = %q, want 800ms", decoded["pipeline"]["stage_dwell"])
	}
	if decoded["server"]["db_path"] != filepath.Join(".nexus", "swarm.db") {
		t.Errorf("server.db_path = %q", decoded["server"]["db_path"])
	}
}

func TestSetConfigKey_Project(t *testing.T) {
	t.Chdir(t.TempDir())
	configProject = true
	t.Cleanup(func() { configProject = false })

	if err := setConfigKey("autopilot.enabled", "true"); err != nil {
		t.Fatalf("setConfigKey() error = %v", err)
	}

	loaded, err := config.LoadFromPath(".nexus.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Autopilot.Enabled {
		t.Error("autopilot.enabled not persisted")
	}
	if loaded.Pipeline.StageDwell != 800*time.Millisecond {
		t.Errorf("defaults lost on save: stage_dwell = %v", loaded.Pipeline.StageDwell)
	}
}
