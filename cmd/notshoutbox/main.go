// Command notshoutbox runs the self-contained WebSocket chat broker: a
// readiness-driven event loop speaking RFC 6455 and Hixie-76 framing over
// raw, non-blocking sockets (grounded on balookrd-outline-cli-ws's cobra
// root-command shape).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benjolitz/notshoutbox/internal/chatloop"
	"github.com/benjolitz/notshoutbox/internal/chatmetrics"
	"github.com/benjolitz/notshoutbox/internal/config"
	"github.com/benjolitz/notshoutbox/internal/history"
	"github.com/benjolitz/notshoutbox/internal/poller"
)

var (
	flagAddr         string
	flagConfigPath   string
	flagHistoryLimit int
	flagBacklog      int
	flagMetricsAddr  string
	flagLogLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "notshoutbox",
	Short: "A readiness-driven WebSocket chat broker",
	RunE:  runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagAddr, "addr", "", "listen address, e.g. :8080 (overrides config file)")
	flags.StringVar(&flagConfigPath, "config", "", "path to an optional YAML config file")
	flags.IntVar(&flagHistoryLimit, "history-limit", 0, "bounded history size (overrides config file)")
	flags.IntVar(&flagBacklog, "backlog", -1, "new-client replay backlog depth (overrides config file)")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on; empty disables it")
	flags.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, or error (overrides config file)")
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return cfg.Build()
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.ListenAddr = flagAddr
	}
	if flagHistoryLimit > 0 {
		cfg.HistoryLimit = flagHistoryLimit
	}
	if flagBacklog >= 0 {
		cfg.NewClientBacklog = flagBacklog
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	metrics := chatmetrics.New()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics, log)
	}

	p, strategy, err := poller.New()
	if err != nil {
		return fmt.Errorf("building poller: %w", err)
	}
	defer p.Close()
	log.Info("poller selected", zap.String("strategy", string(strategy)))

	listenFd, err := chatloop.ListenTCP(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	log.Info("listening", zap.String("addr", cfg.ListenAddr))

	hist := history.New(cfg.HistoryLimit, cfg.NewClientBacklog)
	loop := chatloop.New(listenFd, hist, metrics, p, log, cfg.ReadBufferSize)
	return loop.Run(nil)
}

func serveMetrics(addr string, m *chatmetrics.Metrics, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics listener stopped", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
