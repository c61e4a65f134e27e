package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/sunspec2mqtt/internal/adapter/actor"
	"github.com/berfenger/sunspec2mqtt/internal/config"
	"github.com/berfenger/sunspec2mqtt/internal/core/actor"
	"github.com/berfenger/sunspec2mqtt/internal/metrics"
	"github.com/berfenger/sunspec2mqtt/internal/models"
	"github.com/berfenger/sunspec2mqtt/internal/server"
	"github.com/berfenger/sunspec2mqtt/internal/util/actorutil"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"github.com/berfenger/sunspec2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting sunspec2mqtt", zap.String("version", versioninfo.Short()),
		zap.Time("build_time", versioninfo.LastCommit))

	// model definitions
	dids, err := models.BuildDidTable(cfg.Models.SearchPath, cfg.Models.DisableBuiltin, logger)
	if err != nil {
		logger.Fatal("could not load models", zap.Error(err))
	}

	m := metrics.New()
	diag := sunspec.Tee(sunspec.ZapDiagnostics(logger), m)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, readerActorProvider(cfg, dids, diag, m, logger),
			mqttActorProvider(cfg, logger), m, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Fatal("could not spawn master actor", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid, m.Handler())
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SUNSPEC_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SUNSPEC_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sunspec")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = parseLogLevel(viper.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func readerActorProvider(cfg *config.Config, dids *sunspec.DidTable, diag sunspec.Diagnostics, m *metrics.Metrics, logger *zap.Logger) actor.ReaderActorProvider {
	sessionProvider := func() (sunspec_modbus.Session, error) {
		return sunspec_modbus.CreateSession(cfg.Modbus.Driver, cfg.Modbus.Transport(), logger, m.Instrument())
	}
	return func() *adactor.ReaderActor {
		return adactor.NewReaderActor(sessionProvider, dids, cfg.Reader.DeviceReader(), diag, cfg.Monitor.ReadTimeout(), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("modbus.driver", sunspec_modbus.DriverSimonvetter)
	viper.SetDefault("modbus.url", "")
	viper.SetDefault("modbus.host", "localhost")
	viper.SetDefault("modbus.port", 502)
	viper.SetDefault("modbus.serial_device", "")
	viper.SetDefault("modbus.baud_rate", 9600)
	viper.SetDefault("modbus.unit_id", 1)
	viper.SetDefault("modbus.timeout_millis", 2000)
	viper.SetDefault("reader.signature_addresses", []uint32{1, 40001, 50001, 0x40001})
	viper.SetDefault("reader.retries", 2)
	viper.SetDefault("reader.max_registers_per_read", 125)
	viper.SetDefault("models.search_path", "")
	viper.SetDefault("models.disable_builtin", false)
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("monitor.read_timeout_millis", 10000)
	viper.SetDefault("mqtt.enable", true)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "sunspec")
	viper.SetDefault("mqtt.device_id", "")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
