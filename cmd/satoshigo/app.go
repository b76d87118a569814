package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/satoshigo/hunt/internal/config"
	"github.com/satoshigo/hunt/internal/logging"
	intOtel "github.com/satoshigo/hunt/internal/otel"
)

const configFileName = config.FileName

// services holds the process-wide logging and telemetry setup shared by all
// commands.
type services struct {
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	OTel        *intOtel.Provider

	LogFilePath string
	logFile     *os.File
	graylog     io.Closer
}

// setupServices loads the config and builds the logging pipeline: console,
// log file, optional Graylog and optional OTel.
func setupServices(sessionStart time.Time) *services {
	s := &services{SlogManager: logging.NewSlogManager()}

	// console only until the config says where to log
	s.SlogManager.Setup(nil, "info", nil)
	s.Logger = s.SlogManager.Logger()

	if err := config.Load(flagConfigDir); err != nil {
		s.Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		s.Logger.Info("Loaded config", "dir", flagConfigDir)
	}

	level := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")

	var out io.Writer = os.Stdout
	if f, err := logging.OpenSessionLog(logsDir, logging.ServiceName, sessionStart); err != nil {
		s.Logger.Error("Failed to create/open log file!", "error", err, "dir", logsDir)
	} else {
		s.logFile = f
		s.LogFilePath = f.Name()
		out = io.MultiWriter(os.Stdout, f)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var otelOut io.Writer = os.Stdout
		if s.logFile != nil {
			otelOut = s.logFile
		}
		p, err := intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    otelOut,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			s.Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			s.OTel = p
			s.Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var extra []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		h, closer, err := logging.NewGraylogHandler(graylogCfg.Address, level)
		if err != nil {
			s.Logger.Error("Failed to set up Graylog output", "error", err)
		} else {
			extra = append(extra, h)
			s.graylog = closer
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if s.OTel != nil {
		otelLogProvider = s.OTel.LoggerProvider()
	}
	s.SlogManager.Setup(out, level, otelLogProvider, extra...)
	s.Logger = s.SlogManager.Logger()
	if s.LogFilePath != "" {
		s.Logger.Info("Logging to file", "path", s.LogFilePath)
	}
	return s
}

// close flushes telemetry and releases the log outputs.
func (s *services) close(ctx context.Context) error {
	var errs []error
	if err := s.SlogManager.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.OTel != nil {
		if err := s.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.graylog != nil {
		errs = append(errs, s.graylog.Close())
	}
	if s.logFile != nil {
		errs = append(errs, s.logFile.Close())
	}
	return errors.Join(errs...)
}
