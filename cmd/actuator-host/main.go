// Actuator host - receives gesture commands over TCP and drives the scene object
// Optional surfaces: status web server, sqlite motion journal, MQTT telemetry
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/journal"
	"github.com/teslashibe/go-gesture/pkg/motion"
	"github.com/teslashibe/go-gesture/pkg/receiver"
	"github.com/teslashibe/go-gesture/pkg/telemetry"
	"github.com/teslashibe/go-gesture/pkg/web"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	log.InitWithOptions(log.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	if err := run(cfg); err != nil {
		log.Error("actuator host failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", "", "YAML config file")
	host := flag.String("host", "", "Listen host (overrides config)")
	port := flag.Int("port", 0, "Listen port (overrides config)")
	webPort := flag.String("web", "", "Status web server port, empty to disable")
	journalPath := flag.String("journal", "", "SQLite motion journal path, empty to disable")
	broker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *webPort != "" {
		cfg.Actor.WebPort = *webPort
	}
	if *journalPath != "" {
		cfg.Actor.JournalPath = *journalPath
	}
	if *broker != "" {
		cfg.Actor.MQTTBroker = *broker
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.With("app", "actuator-host")

	a := cfg.Actor
	home := motion.Vec3{X: a.Home[0], Y: a.Home[1], Z: a.Home[2]}
	scene := motion.NewScene()
	scene.Spawn(a.Object, home)

	// Assembled before the receiver starts; the executor only reads it.
	var notifiers motion.Notifiers

	var history web.History
	if a.JournalPath != "" {
		j, err := journal.Open(a.JournalPath, logger)
		if err != nil {
			return err
		}
		defer j.Close()
		notifiers = append(notifiers, j)
		history = j
		log.Info("📒 Journal enabled", "path", a.JournalPath)
	}

	if a.MQTTBroker != "" {
		pub := telemetry.NewPublisher(telemetry.Config{Broker: a.MQTTBroker, Topic: a.MQTTTopic}, logger)
		if err := pub.Connect(); err != nil {
			// paho keeps retrying in the background
			log.Warn("MQTT connect failed", "broker", a.MQTTBroker, "error", err)
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}

	exec := motion.NewExecutor(scene, motion.Config{
		Object:       a.Object,
		Tick:         a.Tick,
		Step:         motion.Vec3{X: a.Step[0], Y: a.Step[1], Z: a.Step[2]},
		LandFactor:   a.LandFactor,
		LandDuration: a.LandDuration,
		HomeSettle:   a.HomeSettle,
		Home:         home,
		Logger:       logger,
		Notifier:     motion.NotifierFunc(func(e motion.Event) { notifiers.Notify(e) }),
	})

	srv := receiver.New(cfg.Addr(), exec,
		receiver.WithReadTimeout(a.ReadTimeout),
		receiver.WithLogger(logger),
	)

	var ws *web.Server
	if a.WebPort != "" {
		ws = web.NewServer(web.Deps{
			Executor: exec,
			Object:   a.Object,
			Scene:    scene,
			Receiver: srv,
			History:  history,
			Logger:   logger,
		})
		notifiers = append(notifiers, ws)
	}

	if err := srv.Start(); err != nil {
		return err
	}
	log.Info("🎯 Actuator host listening", "addr", srv.Addr().String(), "object", a.Object)

	g, gctx := errgroup.WithContext(ctx)
	if ws != nil {
		g.Go(func() error {
			log.Info("🌐 Status server", "url", "http://localhost:"+a.WebPort)
			return ws.ListenAndServe(gctx, ":"+a.WebPort)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("👋 Shutting down")
		return srv.Stop()
	})

	err := g.Wait()
	// the web server may have started a job after the receiver stopped
	exec.Stop()
	return err
}
