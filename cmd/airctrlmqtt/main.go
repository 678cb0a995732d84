// AirCtrlMqtt bridges a TFA Dostmann AIRCO2NTROL CO2 monitor to MQTT.
//
// Each reading is published as one JSON object to the configured topic,
// and the sensor is announced to Home Assistant through MQTT discovery.
// Configuration comes from an optional YAML file overridden by
// environment variables (see [config.Resolve]).
//
// Usage:
//
//	airctrlmqtt serve              Read the sensor and publish (default)
//	airctrlmqtt discovery          Print the discovery topic and payload
//	airctrlmqtt version            Print version and build information
//	airctrlmqtt -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cupcaker/airctrlmqtt/internal/airco2ntrol"
	"github.com/cupcaker/airctrlmqtt/internal/buildinfo"
	"github.com/cupcaker/airctrlmqtt/internal/config"
	"github.com/cupcaker/airctrlmqtt/internal/metrics"
	"github.com/cupcaker/airctrlmqtt/internal/mqtt"
)

// shutdownTimeout bounds the MQTT DISCONNECT on exit.
const shutdownTimeout = 5 * time.Second

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Structured logs go to stdout; the caller
// prints the returned error to stderr and exits non-zero. Arguments are
// parsed by hand so run can be called concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				return fmt.Errorf("unexpected argument: %s", args[i])
			}
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "", "serve":
		return runServe(ctx, stdout, configPath)
	case "discovery":
		return runDiscovery(stdout, configPath, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata as text or JSON.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "AirCtrlMqtt - AIRCO2NTROL to MQTT bridge")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: airctrlmqtt [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Read the sensor and publish to MQTT (default)")
	fmt.Fprintln(w, "  discovery    Print the Home Assistant discovery topic and payload")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/airctrlmqtt/config.yaml, /etc/airctrlmqtt/config.yaml")
	fmt.Fprintln(w, "Environment variables (MQTT_HOST, MQTT_PORT, ...) override the file.")
	return nil
}

// loadConfig resolves configuration and builds the configured logger.
func loadConfig(stdout io.Writer, configPath string) (*config.Config, string, *slog.Logger, error) {
	cfg, cfgPath, err := config.Resolve(configPath, os.Getenv)
	if err != nil {
		return nil, "", nil, err
	}
	// Both are already checked by Validate.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	format, _ := config.ParseLogFormat(cfg.LogFormat)
	return cfg, cfgPath, config.NewLogger(stdout, level, format), nil
}

// resolveObjectID returns the configured object ID or derives one from
// the persisted instance ID.
func resolveObjectID(cfg *config.Config) (string, error) {
	if cfg.HomeAssistant.ObjectID != "" {
		return cfg.HomeAssistant.ObjectID, nil
	}
	id, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
	if err != nil {
		return "", err
	}
	return mqtt.ObjectIDFromInstance(id), nil
}

// runDiscovery prints what serve would announce, without connecting.
func runDiscovery(w io.Writer, configPath, outputFmt string) error {
	cfg, _, err := config.Resolve(configPath, os.Getenv)
	if err != nil {
		return err
	}
	objectID, err := resolveObjectID(cfg)
	if err != nil {
		return err
	}

	topic := mqtt.DiscoveryTopic(cfg.HomeAssistant.DiscoveryPrefix, objectID)
	payload, err := mqtt.EncodeDiscovery(mqtt.BuildDescriptor(objectID, cfg.MQTT.Topic))
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Topic   string          `json:"topic"`
			Enabled bool            `json:"enabled"`
			Payload json.RawMessage `json:"payload"`
		}{topic, cfg.HomeAssistant.DiscoveryEnabled, payload})
	}

	if !cfg.HomeAssistant.DiscoveryEnabled {
		fmt.Fprintln(w, "# discovery is disabled; serve will not publish this")
	}
	fmt.Fprintln(w, topic)
	fmt.Fprintln(w, string(payload))
	return nil
}

// announce publishes the discovery document when discovery is enabled.
// The state topic is always the publisher's own topic.
func announce(ctx context.Context, cfg *config.Config, pub *mqtt.Publisher, objectID string, logger *slog.Logger) {
	if !cfg.HomeAssistant.DiscoveryEnabled {
		logger.Info("home assistant discovery disabled")
		return
	}
	pub.PublishDiscovery(ctx, cfg.HomeAssistant.DiscoveryPrefix, objectID, pub.Topic())
}

// readingHandler logs each reading, records it and hands it to the
// publisher without waiting on the broker.
func readingHandler(pub *mqtt.Publisher, logger *slog.Logger) airco2ntrol.HandlerFunc {
	return func(t time.Time, co2 uint16, temperature, humidity float64) {
		logger.Info("sensor reading",
			"co2_ppm", co2,
			"temperature_c", temperature,
			"humidity_pct", humidity,
		)
		metrics.ObserveReading(co2, temperature, humidity)
		pub.PublishReading(mqtt.Reading{
			Time:        t,
			CO2:         co2,
			Temperature: temperature,
			Humidity:    humidity,
		})
	}
}

// runServe is the long-running bridge. Startup order: config, sensor,
// broker connect and validation, supervisor, discovery, then monitoring.
// Any startup failure is returned; after that, errors are logged only.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, logger, err := loadConfig(stdout, configPath)
	if err != nil {
		return err
	}
	logger.Info("starting AirCtrlMqtt",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)
	logger.Info("config loaded",
		"path", cfgPath,
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
		"topic", cfg.MQTT.Topic,
		"auth", cfg.MQTT.HasCredentials(),
		"tls", cfg.MQTT.TLS,
		"discovery", cfg.HomeAssistant.DiscoveryEnabled,
	)

	objectID, err := resolveObjectID(cfg)
	if err != nil {
		return err
	}

	// The session lives on the parent context so a signal leaves it up
	// for the DISCONNECT below.
	sessionCtx := ctx
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Sensor ---
	devPath := cfg.Sensor.Device
	if devPath == "" {
		devPath, err = airco2ntrol.Find()
		if err != nil {
			return fmt.Errorf("sensor init: %w", err)
		}
	}
	monitor, err := airco2ntrol.Open(devPath, logger.With("component", "sensor"))
	if err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}
	defer monitor.Close()

	// --- MQTT ---
	mqttLogger := logger.With("component", "mqtt")
	cm, events, err := mqtt.Connect(sessionCtx, mqtt.Settings{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		TLS:      cfg.MQTT.TLS,
	})
	if err != nil {
		return err
	}
	if err := mqtt.ValidateConnection(ctx, events, mqtt.DefaultValidateTimeout, mqttLogger); err != nil {
		return err
	}
	metrics.SetConnected(true)

	pub := mqtt.NewPublisher(cm, cfg.MQTT.Topic, mqttLogger)

	go pub.Run(ctx)

	go mqtt.Supervise(ctx, events, mqtt.SupervisorConfig{
		AssumeConnected: true,
		OnReady: func() {
			// Retained, but a broker restart without persistence loses it.
			announce(ctx, cfg, pub, objectID, mqttLogger)
		},
		OnTransition: metrics.SetConnected,
		Logger:       mqttLogger,
	})

	announce(ctx, cfg, pub, objectID, mqttLogger)

	// --- Metrics ---
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	// --- Monitoring ---
	monitor.RegisterCallback(readingHandler(pub, logger))
	done := monitor.StartMonitoring(ctx)
	logger.Info("monitoring sensor", "device", devPath, "object_id", objectID)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-done:
		runErr = fmt.Errorf("sensor %s stopped delivering readings", devPath)
	}

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer disconnectCancel()
	if err := cm.Disconnect(disconnectCtx); err != nil {
		logger.Warn("mqtt disconnect failed", "error", err)
	}
	metrics.SetConnected(false)
	logger.Info("AirCtrlMqtt stopped")
	return runErr
}
