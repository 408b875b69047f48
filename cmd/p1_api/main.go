// p1_api reads the P1 port, stores every telegram and serves load queries over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/api"
	"github.com/NotCoffee418/p1_load_monitor/pkg/config"
	"github.com/NotCoffee418/p1_load_monitor/pkg/ingest"
	"github.com/NotCoffee418/p1_load_monitor/pkg/livefeed"
	"github.com/NotCoffee418/p1_load_monitor/pkg/logging"
	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/NotCoffee418/p1_load_monitor/pkg/metrics"
	"github.com/NotCoffee418/p1_load_monitor/pkg/mqttpub"
	"github.com/NotCoffee418/p1_load_monitor/pkg/pathing"
	"github.com/NotCoffee418/p1_load_monitor/pkg/port_reader"
	"github.com/NotCoffee418/p1_load_monitor/pkg/solarinverter"
	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"go.uber.org/zap"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	// Load config
	cfg, err := config.LoadMeterAPIConfig(pathing.GetConfigDir())
	if err != nil {
		log.Fatalf("Failed to load p1 api config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("p1 api stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.MeterAPIConfig, logger *zap.Logger) error {
	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = pathing.GetMeterDbPath()
	}
	db, err := meterdb.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open meter store: %w", err)
	}
	defer db.Close()

	m := metrics.NewMetrics()
	hub := livefeed.NewHub(logger.Named("livefeed"))

	publishers := []ingest.Publisher{hub}
	if cfg.MqttBroker != "" {
		pub, err := mqttpub.Connect(cfg.MqttBroker, cfg.MqttClientID, cfg.MqttTopic, logger.Named("mqtt"))
		if err != nil {
			// Optional fan-out, the meter keeps being recorded without it
			logger.Warn("mqtt publishing disabled", zap.Error(err))
		} else {
			defer pub.Close()
			publishers = append(publishers, pub)
		}
	}

	sink := ingest.NewSink(db, logger.Named("ingest"),
		ingest.WithMetrics(m),
		ingest.WithPublishers(publishers...))

	reader := port_reader.NewP1Reader(opener(cfg), newAssembler(cfg, m, logger), port_reader.ReaderOptions{
		Once: cfg.ReplayFile != "",
	}, logger.Named("p1"))

	inverter := solarinverter.NewInverter(solarinverter.Config{
		Host:             cfg.SolarInverterIp,
		ModbusPort:       cfg.SolarInverterModbusPort,
		WlanConnectionId: cfg.WlanConnectionId,
	}, logger.Named("solar"))

	srv := &http.Server{
		Addr: cfg.ListenAddr(),
		Handler: api.NewHandler(api.Deps{
			Store:   db,
			Latest:  reader,
			LiveWS:  http.HandlerFunc(hub.ServeWS),
			Solar:   inverter,
			Metrics: m,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		err := reader.Run(ctx, sink.Submit)
		switch {
		case err != nil && cfg.ReplayFile == "":
			cancel(fmt.Errorf("p1 reader: %w", err))
		case err != nil:
			logger.Warn("replay ended with error", zap.Error(err))
		case cfg.ReplayFile != "":
			logger.Info("replay finished", zap.String("file", cfg.ReplayFile))
		}
	}()

	go func() {
		logger.Info("starting p1 load monitor api", zap.String("listen", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cancel(fmt.Errorf("http server: %w", err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hub.Close()
	<-readerDone
	sink.Wait()

	if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func opener(cfg *config.MeterAPIConfig) port_reader.Opener {
	if cfg.ReplayFile != "" {
		return port_reader.FileOpener(cfg.ReplayFile)
	}
	return port_reader.SerialOpener(port_reader.SerialOptions{
		Device:      cfg.SerialDevice,
		Baudrate:    cfg.Baudrate,
		DataBits:    cfg.DataBits,
		StopBits:    cfg.StopBits,
		Parity:      cfg.Parity,
		ReadTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
	})
}

func newAssembler(cfg *config.MeterAPIConfig, m *metrics.Metrics, logger *zap.Logger) *telegram.Assembler {
	opts := []telegram.Option{
		telegram.WithMalformedHook(func(identifier, line string) {
			m.MalformedLine(identifier, line)
			logger.Debug("malformed register line",
				zap.String("register", identifier),
				zap.String("line", line))
		}),
	}
	if cfg.ChecksumEnabled {
		opts = append(opts,
			telegram.WithChecksum(),
			telegram.WithChecksumHook(func(line string) {
				m.ChecksumFailed(line)
				logger.Warn("telegram dropped: checksum mismatch", zap.String("trailer", line))
			}))
	}
	return telegram.NewAssembler(opts...)
}
