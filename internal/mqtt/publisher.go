// Package mqtt makes the bot visible in Home Assistant: discovery
// messages, periodic sensor states and availability with a will
// message, via Eclipse Paho v2's autopaho connection manager.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hausgeist/hausgeist/internal/config"
)

// StatsSource provides the runtime data behind the published sensors.
// The concrete adapter is wired in main to keep this package decoupled
// from the engine and session store.
type StatsSource interface {
	Uptime() time.Duration
	Version() string
	Model() string
	KnownUsers() int
	TurnsServed() int64
	LastTurnTime() time.Time
}

// Publisher manages the broker connection, publishes HA discovery
// configs on every (re-)connect and pushes sensor states periodically.
type Publisher struct {
	cfg    config.MQTTConfig
	device DeviceInfo
	stats  StatsSource
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect; Start does.
func New(cfg config.MQTTConfig, stats StatsSource, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:    cfg,
		device: NewDeviceInfo(cfg.DeviceName),
		stats:  stats,
		logger: logger,
	}
}

// Start connects to the broker and runs the publish loop until ctx is
// canceled. On every (re-)connect it republishes discovery configs and
// the "online" birth message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected", "broker", p.cfg.Broker)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "hausgeist-" + p.cfg.DeviceName,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes "offline" and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) baseTopic() string {
	return "hausgeist/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) discoveryTopic(entity string) string {
	return p.cfg.DiscoveryPrefix + "/sensor/" + p.cfg.DeviceName + "/" + entity + "/config"
}

type sensorDef struct {
	entity string
	config SensorConfig
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	avail := p.availabilityTopic()
	base := func(entity, name, icon string) SensorConfig {
		return SensorConfig{
			Name:              p.device.Name + " " + name,
			UniqueID:          p.device.Identifiers[0] + "_" + entity,
			StateTopic:        p.stateTopic(entity),
			AvailabilityTopic: avail,
			Device:            p.device,
			Icon:              icon,
		}
	}

	uptime := base("uptime", "Uptime", "mdi:clock-outline")
	uptime.EntityCategory = "diagnostic"

	version := base("version", "Version", "mdi:tag")
	version.EntityCategory = "diagnostic"

	model := base("model", "Model", "mdi:brain")
	model.EntityCategory = "diagnostic"

	users := base("known_users", "Known Users", "mdi:account-group")
	users.StateClass = "measurement"

	turns := base("turns_served", "Turns Served", "mdi:chat-processing")
	turns.StateClass = "total_increasing"

	lastTurn := base("last_turn", "Last Turn", "mdi:clock-check")
	lastTurn.EntityCategory = "diagnostic"

	return []sensorDef{
		{"uptime", uptime},
		{"version", version},
		{"model", model},
		{"known_users", users},
		{"turns_served", turns},
		{"last_turn", lastTurn},
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic(s.entity)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload", "entity", s.entity, "error", err)
			continue
		}
		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed", "entity", s.entity, "error", err)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}

func (p *Publisher) runLoop(ctx context.Context) {
	interval := time.Duration(p.cfg.PublishIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publishStates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

func (p *Publisher) publishStates(ctx context.Context) {
	if p.cm == nil {
		return
	}

	lastTurn := "never"
	if t := p.stats.LastTurnTime(); !t.IsZero() {
		lastTurn = t.Format(time.RFC3339)
	}

	states := map[string]string{
		"uptime":       p.stats.Uptime().Truncate(time.Second).String(),
		"version":      p.stats.Version(),
		"model":        p.stats.Model(),
		"known_users":  strconv.Itoa(p.stats.KnownUsers()),
		"turns_served": strconv.FormatInt(p.stats.TurnsServed(), 10),
		"last_turn":    lastTurn,
	}

	for entity, value := range states {
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   p.stateTopic(entity),
			Payload: []byte(value),
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed", "entity", entity, "error", err)
		}
	}
}
