// Hausgeist is a Telegram house bot. It answers questions about the
// household (energy, appliances, weather, trash schedule, todos) by
// letting an LLM drive a set of local tools, and proactively messages
// every known user on configured cron triggers.
//
// Usage:
//
//	hausgeist                 Run the bot (config discovered automatically)
//	hausgeist -config x.yaml  Run with an explicit config file
//	hausgeist init            Write an example config.yaml
//	hausgeist version         Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hausgeist/hausgeist/examples"
	"github.com/hausgeist/hausgeist/internal/agent"
	"github.com/hausgeist/hausgeist/internal/appliance"
	"github.com/hausgeist/hausgeist/internal/buildinfo"
	"github.com/hausgeist/hausgeist/internal/config"
	"github.com/hausgeist/hausgeist/internal/energy"
	"github.com/hausgeist/hausgeist/internal/llm"
	"github.com/hausgeist/hausgeist/internal/mqtt"
	"github.com/hausgeist/hausgeist/internal/news"
	"github.com/hausgeist/hausgeist/internal/notify"
	"github.com/hausgeist/hausgeist/internal/scheduler"
	"github.com/hausgeist/hausgeist/internal/session"
	"github.com/hausgeist/hausgeist/internal/telegram"
	"github.com/hausgeist/hausgeist/internal/todo"
	"github.com/hausgeist/hausgeist/internal/tools"
	"github.com/hausgeist/hausgeist/internal/trash"
	"github.com/hausgeist/hausgeist/internal/userdir"
	"github.com/hausgeist/hausgeist/internal/weather"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "version":
			fmt.Fprintln(stdout, buildinfo.String())
			return nil
		case args[i] == "init":
			return writeExampleConfig(stdout)
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			fmt.Fprintln(stdout, "usage: hausgeist [-config path] [init|version]")
			return nil
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	logger.Info("starting hausgeist",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"config", cfgPath,
	)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is not configured")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is not configured")
	}
	loc := cfg.Location()

	// SIGINT/SIGTERM cancel everything below.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	users, err := userdir.Open(filepath.Join(cfg.DataDir, "users.db"))
	if err != nil {
		return fmt.Errorf("open user directory: %w", err)
	}
	defer users.Close()

	todos, err := todo.Open(filepath.Join(cfg.DataDir, "todos.db"))
	if err != nil {
		return fmt.Errorf("open todo store: %w", err)
	}
	defer todos.Close()

	model := llm.NewOpenAIClient(cfg.OpenAI, logger)

	registry := tools.NewRegistry()
	registerToolSuites(registry, cfg, todos, model, loc, logger)
	logger.Info("tools registered", "count", registry.Len())

	dispatcher := tools.NewDispatcher(registry,
		time.Duration(cfg.Engine.ToolTimeoutSec)*time.Second, logger)
	sessions := session.NewStore(users, cfg.Persona, loc, logger)
	engine := agent.New(model, registry, dispatcher, sessions, agent.Options{
		MaxToolRounds:   cfg.Engine.MaxToolRounds,
		ProviderRetries: cfg.Engine.ProviderRetries,
		RetryDelay:      time.Duration(cfg.Engine.RetryDelaySec) * time.Second,
		ModelTimeout:    time.Duration(cfg.Engine.ModelTimeoutSec) * time.Second,
	}, logger)

	tg := telegram.NewClient(cfg.Telegram.Token, logger)
	bot := telegram.NewBot(tg, engine, model, cfg.Telegram.PollTimeoutSec, logger)

	notifier := notify.New(sessions, registry, engine, bot, loc, logger)
	triggers, err := buildTriggers(cfg.Triggers)
	if err != nil {
		return err
	}
	sched := scheduler.New(triggers, loc, notifier.Fire, logger)
	sched.Start()
	defer sched.Stop()

	if cfg.MQTT.Enabled {
		publisher := mqtt.New(cfg.MQTT, &statsAdapter{
			model:    cfg.OpenAI.Model,
			engine:   engine,
			sessions: sessions,
		}, logger)
		go func() {
			if err := publisher.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			publisher.Stop(stopCtx)
		}()
	}

	err = bot.Run(ctx)
	logger.Info("hausgeist stopped")
	return err
}

// writeExampleConfig creates ./config.yaml from the embedded example,
// refusing to overwrite an existing file.
func writeExampleConfig(stdout io.Writer) error {
	const path = "config.yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, examples.ConfigYAML, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s; edit it and run hausgeist\n", path)
	return nil
}

// registerToolSuites wires every configured capability into the
// registry. Unconfigured suites are simply absent from the model's
// tool list.
func registerToolSuites(r *tools.Registry, cfg *config.Config, todos *todo.Store, model llm.Client, loc *time.Location, logger *slog.Logger) {
	if url := cfg.Tools.Energy.EVCCURL; url != "" {
		r.SetEnergyTools(energy.NewClient(url, logger))
	}

	var washer, dryer *appliance.Monitor
	if url := cfg.Tools.Appliances.WasherURL; url != "" {
		washer = appliance.NewMonitor("washing machine", url, logger)
	}
	if url := cfg.Tools.Appliances.DryerURL; url != "" {
		dryer = appliance.NewMonitor("dryer", url, logger)
	}
	r.SetApplianceTools(washer, dryer)

	if key := cfg.Tools.Weather.APIKey; key != "" {
		r.SetWeatherTools(weather.NewClient(key, cfg.Home.Latitude, cfg.Home.Longitude, loc, logger))
	}

	if path := cfg.Tools.Trash.CalendarFile; path != "" {
		cal, err := trash.Load(path, loc)
		if err != nil {
			logger.Error("trash calendar unavailable", "path", path, "error", err)
		} else {
			r.SetTrashTools(cal, loc)
		}
	}

	if nc := cfg.Tools.News; len(nc.Feeds) > 0 {
		var sources []news.Source
		for _, f := range nc.Feeds {
			sources = append(sources, news.Source{Name: f.Name, URL: f.URL})
		}
		r.SetNewsTools(news.NewReader(sources, nc.Interests,
			time.Duration(nc.MaxAgeHours)*time.Hour, nc.TopCount, model, logger))
	}

	r.SetTodoTools(todos, loc)
}

func buildTriggers(configs []config.TriggerConfig) ([]*scheduler.Trigger, error) {
	var triggers []*scheduler.Trigger
	for _, tc := range configs {
		tr, err := scheduler.NewTrigger(tc.Name, tc.Cron, tc.Prompt)
		if err != nil {
			return nil, err
		}
		tr.Precheck = tc.Precheck
		tr.MisfireGrace = time.Duration(tc.MisfireGraceSec) * time.Second
		triggers = append(triggers, tr)
	}
	return triggers, nil
}

// statsAdapter feeds runtime numbers to the MQTT sensors.
type statsAdapter struct {
	model    string
	engine   *agent.Engine
	sessions *session.Store
}

func (s *statsAdapter) Uptime() time.Duration { return buildinfo.Uptime() }
func (s *statsAdapter) Version() string       { return buildinfo.Version }
func (s *statsAdapter) Model() string         { return s.model }

func (s *statsAdapter) KnownUsers() int {
	ids, err := s.sessions.KnownUserIDs()
	if err != nil {
		return 0
	}
	return len(ids)
}

func (s *statsAdapter) TurnsServed() int64      { return s.engine.TurnsServed() }
func (s *statsAdapter) LastTurnTime() time.Time { return s.engine.LastTurnTime() }
