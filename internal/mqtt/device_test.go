package mqtt

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/hausgeist/hausgeist/internal/config"
)

type fakeStats struct{}

func (fakeStats) Uptime() time.Duration   { return 90 * time.Second }
func (fakeStats) Version() string         { return "1.2.3" }
func (fakeStats) Model() string           { return "gpt-4o-mini" }
func (fakeStats) KnownUsers() int         { return 4 }
func (fakeStats) TurnsServed() int64      { return 123 }
func (fakeStats) LastTurnTime() time.Time { return time.Time{} }

func testPublisher() *Publisher {
	return New(config.MQTTConfig{
		DeviceName:      "dieter",
		DiscoveryPrefix: "homeassistant",
	}, fakeStats{}, slog.New(slog.DiscardHandler))
}

func TestSensorConfigPayload(t *testing.T) {
	p := testPublisher()

	defs := p.sensorDefinitions()
	if len(defs) != 6 {
		t.Fatalf("got %d sensors, want 6", len(defs))
	}

	seen := make(map[string]bool)
	for _, s := range defs {
		if seen[s.config.UniqueID] {
			t.Errorf("duplicate unique_id %q", s.config.UniqueID)
		}
		seen[s.config.UniqueID] = true

		payload, err := json.Marshal(s.config)
		if err != nil {
			t.Fatalf("marshal %s: %v", s.entity, err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", s.entity, err)
		}
		if decoded["state_topic"] != "hausgeist/dieter/"+s.entity+"/state" {
			t.Errorf("%s state_topic = %v", s.entity, decoded["state_topic"])
		}
		if decoded["availability_topic"] != "hausgeist/dieter/availability" {
			t.Errorf("%s availability_topic = %v", s.entity, decoded["availability_topic"])
		}
		device, ok := decoded["device"].(map[string]any)
		if !ok {
			t.Fatalf("%s has no device block", s.entity)
		}
		if device["name"] != "dieter" {
			t.Errorf("%s device name = %v", s.entity, device["name"])
		}
	}
}

func TestDiscoveryTopics(t *testing.T) {
	p := testPublisher()
	if got := p.discoveryTopic("uptime"); got != "homeassistant/sensor/dieter/uptime/config" {
		t.Errorf("discoveryTopic = %q", got)
	}
}
