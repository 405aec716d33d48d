package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/logging"
	intOtel "github.com/OCAP2/vehicledyn/internal/otel"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "vehiclesim"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZeroLog backs the dispatcher and the database/influx managers
	ZeroLog zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [flags]

commands:
  run        simulate a scenario and record it
  plot       render PNG charts from a JSON export
  vehicles   list the vehicle catalog
  version    print the version
`, AppName)
}

// commonFlags registers the flags every command shares. Flag names are viper
// keys so viper.BindPFlags maps them directly.
func commonFlags(fs *pflag.FlagSet) *string {
	configDir := fs.StringP("config", "c", ".", "directory containing "+config.FileName)
	fs.String("logLevel", "info", "log level (debug, info, warn, error)")
	fs.String("logsDir", "./simlogs", "directory for log files")
	return configDir
}

// loadConfig parses args, reads the config file and binds the flags over it.
func loadConfig(fs *pflag.FlagSet, configDir *string, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgErr := config.Load(*configDir)
	if err := viper.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	setupLogging()
	if cfgErr != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	return nil
}

func setupLogging() {
	level := viper.GetString("logLevel")

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, level, nil)
	Logger = SlogManager.Logger()

	var err error
	var file io.Writer
	LogFile, LogFilePath, err = logging.OpenLogFile(viper.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	} else {
		file = LogFile
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      file,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			Attributes:     map[string]string{"version": CurrentVersion},
			MetricInterval: otelCfg.MetricInterval,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	// Re-setup logging with file output and optional OTel
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(file, level, otelLogProvider)

	if viper.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(viper.GetString("graylog.address"))
		if err != nil {
			SlogManager.Logger().Warn("Graylog disabled", "error", err)
		} else {
			SlogManager.AddWriter(w)
		}
	}
	Logger = SlogManager.Logger()

	zw := io.Discard
	if file != nil {
		zw = file
	}
	ZeroLog = logging.NewZerolog(zw, level, AppName)

	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion)
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if SlogManager != nil {
		_ = SlogManager.Flush(ctx)
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch strings.ToLower(os.Args[1]) {
	case "run":
		err = runCommand(os.Args[2:])
	case "plot":
		err = plotCommand(os.Args[2:])
	case "vehicles":
		err = vehiclesCommand(os.Args[2:])
	case "version":
		fmt.Println(CurrentVersion, BuildDate)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	shutdownLogging()

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
