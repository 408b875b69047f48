// meter_tail prints every record the p1 api stores, one JSON document per line.
// Depends on the p1 api being online.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NotCoffee418/p1_load_monitor/pkg/config"
	"github.com/NotCoffee418/p1_load_monitor/pkg/livefeed"
	"github.com/NotCoffee418/p1_load_monitor/pkg/logging"
	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/NotCoffee418/p1_load_monitor/pkg/pathing"
	"go.uber.org/zap"
)

func main() {
	host := flag.String("host", "", "p1 api host:port, overrides meter_tail.toml")
	flag.Parse()

	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	cfg, err := config.LoadTailConfig(pathing.GetConfigDir())
	if err != nil {
		log.Fatalf("Failed to load meter tail config: %v", err)
	}
	if *host != "" {
		cfg.APIHost = *host
	}

	// Logs go to stderr so stdout stays a clean record stream
	logger, err := logging.NewLogger("warn", "stderr")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe to websocket with revive
	u := livefeed.FeedURL(cfg.APIHost, cfg.TLSEnabled)
	if err := livefeed.Listen(ctx, u, livefeed.DefaultListenerOptions(), logger, printRecord); err != nil {
		logger.Error("live feed stopped", zap.Error(err))
		os.Exit(1)
	}
}

func printRecord(record meterdb.Record) {
	b, err := json.Marshal(record)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}
