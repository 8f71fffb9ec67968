package util

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupConfigDefaults(t *testing.T) {
	SetupConfig()

	stringKeys := []struct {
		key      string
		expected string
	}{
		{"topic_base", "casa_oscar"},
		{"peer_topic", "cmqtt_a"},
		{"log_format", "console"},
		{"embedded_broker_addr", ":1883"},
	}
	for _, tt := range stringKeys {
		if got := Config.GetString(tt.key); got != tt.expected {
			t.Errorf("%s = %q, expected %q", tt.key, got, tt.expected)
		}
	}

	ints := []struct {
		key      string
		expected int
	}{
		{"publish_queue", 64},
		{"publish_timeout_ms", 2000},
		{"breaker_failures", 5},
		{"breaker_open_ms", 10000},
		{"session_ttl_minutes", 1440},
		{"max_sessions", 1024},
		{"details_port", 8080},
	}
	for _, tt := range ints {
		if got := Config.GetInt(tt.key); got != tt.expected {
			t.Errorf("%s = %d, expected %d", tt.key, got, tt.expected)
		}
	}

	for _, key := range []string{"strict_validation", "shared_state", "embedded_broker", "ha_discovery"} {
		if Config.GetBool(key) {
			t.Errorf("%s should default to false", key)
		}
	}
}

func TestSetupConfigEnvironment(t *testing.T) {
	t.Setenv("PEER_TOPIC", "cmqtt_b")
	t.Setenv("SHARED_STATE", "true")
	SetupConfig()

	if Config.GetString("peer_topic") != "cmqtt_b" {
		t.Errorf("peer_topic = %s, expected the environment override", Config.GetString("peer_topic"))
	}
	if !Config.GetBool("shared_state") {
		t.Error("shared_state should come from the environment")
	}
}

func TestSetupConfigReadsConfigDirectory(t *testing.T) {
	if _, err := os.Stat("config"); err == nil {
		t.Skip("a config directory already exists here")
	}
	if err := os.Mkdir("config", 0o755); err != nil {
		t.Fatalf("creating config directory: %v", err)
	}
	defer os.RemoveAll("config")

	yaml := "peer_topic: cmqtt_file\nstrict_validation: true\nsession_ttl_minutes: 15\n"
	if err := os.WriteFile(filepath.Join("config", CONFIG_NAME+".yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	SetupConfig()
	defer func() {
		Config.Set("peer_topic", "cmqtt_a")
		Config.Set("strict_validation", false)
		Config.Set("session_ttl_minutes", 1440)
	}()

	if Config.ConfigFileUsed() == "" {
		t.Fatal("no config file was read")
	}
	if Config.GetString("peer_topic") != "cmqtt_file" {
		t.Errorf("peer_topic = %s, expected cmqtt_file", Config.GetString("peer_topic"))
	}
	if !Config.GetBool("strict_validation") || Config.GetInt("session_ttl_minutes") != 15 {
		t.Error("validation and session settings should come from the file")
	}
}

func TestConfigListenersRunOnce(t *testing.T) {
	saved := config_listeners
	defer func() { config_listeners = saved }()
	config_listeners = nil

	calls := 0
	reload := func() { calls++ }
	RegisterNewConfigListener(reload)
	RegisterNewConfigListener(reload)

	OnNewConfig()
	if calls != 1 {
		t.Errorf("listener ran %d times, expected 1", calls)
	}
}

// Session ids and client id suffixes end up in cookies and MQTT client ids.
func TestGetRandStringIsCookieSafe(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := GetRandString(24)
		if len(id) != 24 {
			t.Fatalf("length = %d, expected 24", len(id))
		}
		c := &http.Cookie{Name: "casa_session", Value: id}
		if c.Valid() != nil {
			t.Errorf("%q is not a valid cookie value", id)
		}
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if GetRandString(0) != "" {
		t.Error("zero length should give an empty string")
	}
}
