package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comalice/btreex"
	"github.com/comalice/btreex/predicate"
	"github.com/comalice/btreex/realtime"
)

//go:embed demo.yaml
var defaultConfig []byte

func main() {
	configPath := flag.String("config", "", "YAML tree config (defaults to the embedded sentry config)")
	engineName := flag.String("engine", "expr", "predicate engine: expr or cel")
	duration := flag.Duration("duration", 6*time.Second, "how long to run")
	flag.Parse()

	if err := run(*configPath, *engineName, *duration); err != nil {
		fmt.Fprintln(os.Stderr, "demo:", err)
		os.Exit(1)
	}
}

func run(configPath, engineName string, duration time.Duration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	engine, err := newEngine(engineName)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	bb := btreex.NewBlackboard()
	bb.Load(map[string]any{"health": 100, "ammo": 3, "enemy": false, "waypoint": 0})

	root, err := sentry(cfg, engine, bb, logger)
	if err != nil {
		return err
	}

	events := make(chan btreex.TransitionEvent, 256)
	opts := append(cfg.Options(logger),
		btreex.WithBlackboard(bb),
		btreex.WithPublisher(btreex.NewChannelPublisher(events)),
	)
	tree, err := btreex.NewTree(root, opts...)
	if err != nil {
		return err
	}

	rt := realtime.NewRuntime(tree, realtime.FromConfig(cfg.Realtime, logger))

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go world(ctx, rt, logger)

	for {
		select {
		case ev := <-events:
			if ev.To == btreex.SubRunning {
				logger.Debug("running", "node", ev.Node, "frame", ev.Frame)
			}
		case res := <-rt.Done():
			logger.Info("runtime finished", "ticks", res.Tick, "status", res.Status, "cause", res.Err)
			return nil
		case <-sig:
			logger.Info("shutting down gracefully")
			return rt.Stop()
		}
	}
}

func loadConfig(path string) (*btreex.Config, error) {
	if path == "" {
		return btreex.ParseConfig(defaultConfig)
	}
	return btreex.LoadConfig(path)
}

func newEngine(name string) (predicate.Engine, error) {
	switch name {
	case "expr":
		return predicate.NewExprEngine(), nil
	case "cel":
		e, err := predicate.NewCELEngine()
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown predicate engine %q", name)
	}
}

// world feeds scripted sightings and damage into the blackboard from outside
// the tick goroutine.
func world(ctx context.Context, rt *realtime.Runtime, logger *slog.Logger) {
	script := []struct {
		after time.Duration
		key   string
		value any
	}{
		{time.Second, "enemy", true},
		{2 * time.Second, "health", 20},
		{3500 * time.Millisecond, "enemy", false},
		{4 * time.Second, "health", 100},
	}
	start := time.Now()
	for _, step := range script {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(start.Add(step.after))):
		}
		key, value := step.key, step.value
		if err := rt.Post(func(t *btreex.Tree) { t.Blackboard().Set(key, value) }); err != nil {
			logger.Warn("post dropped", "key", key, "error", err)
		}
	}
}
