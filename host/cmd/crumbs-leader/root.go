package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"crumbs/host/bridge"
	"crumbs/host/config"
	"crumbs/host/i2c"
	"crumbs/host/leader"
	"crumbs/host/logging"
	"crumbs/host/metrics"
	"crumbs/protocol"
)

const appName = "crumbs-leader"

var (
	// Global flags
	configPath  string
	driverKind  string
	busNumber   uint8
	serialPath  string
	logLevel    string
	metricsAddr string

	settings config.Config
	logger   = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "CRUMBS bus controller",
	Long: `crumbs-leader sends 31-byte CRUMBS messages to I2C peripherals and
requests their replies, either through Linux i2c-dev or through a
Klipper-protocol MCU acting as a serial-to-I2C bridge.`,
	Version:           protocol.Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&driverKind, "driver", "", "Bus driver: i2cdev or bridge")
	flags.Uint8VarP(&busNumber, "bus", "b", 1, "I2C bus number")
	flags.StringVar(&serialPath, "device", "", "Serial device of the bridge MCU")
	flags.StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, off")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

// loadSettings merges the config file with flags set on the command line
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver = driverKind
	}
	if flags.Changed("bus") {
		cfg.Bus = busNumber
	}
	if flags.Changed("device") {
		cfg.Serial.Device = serialPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Address = metricsAddr
	}

	settings = cfg
	logger = logging.New(appName, logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
	return nil
}

// newDriver builds the bus driver selected by cfg
func newDriver(cfg config.Config, logger zerolog.Logger) (i2c.Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case config.DriverDev:
		return i2c.NewDevDriver(), nil
	case config.DriverBridge:
		return bridge.NewDriver(bridge.Config{
			Serial: bridge.SerialConfig{
				Device:      cfg.Serial.Device,
				Baud:        cfg.Serial.Baud,
				ReadTimeout: cfg.Serial.ReadTimeout,
			},
			Rate:            cfg.Rate,
			ResponseTimeout: cfg.ResponseTimeout,
			Logger:          logger.With().Str("component", "bridge").Logger(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// openTransport opens the configured bus and starts the metrics listener
// when one is configured
func openTransport() (*leader.Transport, error) {
	driver, err := newDriver(settings, logger)
	if err != nil {
		return nil, err
	}

	withMetrics := settings.Metrics.Address != ""
	if withMetrics {
		serveMetrics(settings.Metrics.Address)
	}

	t := leader.New(driver, i2c.BusID(settings.Bus),
		leader.WithLogger(logger),
		leader.WithMetrics(withMetrics),
	)
	if err := t.Open(); err != nil {
		return nil, err
	}
	return t, nil
}

func serveMetrics(addr string) {
	metrics.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener stopped")
		}
	}()
}
