package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/logship/internal/adapters/metrics"
	"github.com/bft-labs/logship/internal/cliconfig"
	"github.com/bft-labs/logship/internal/linesource"
	"github.com/bft-labs/logship/pkg/log"
	"github.com/bft-labs/logship/pkg/logship"
	"github.com/bft-labs/logship/plugins/filetail"
)

const helpDescription = `
Ship newline-delimited log messages to a collector in batches.

Highlights:
  - Messages are batched by count and by time, encoded as msgpack or CBOR.
  - A bounded delivery queue applies backpressure or drops, your choice.
  - Connections are rotated and failed requests retried with backoff.
  - Reads stdin and/or follows files; configure via file, env, or flags.
`

var exampleUsage = strings.TrimSpace(`
  my-app | logship ship --api-key <key>
  logship ship --api-key <key> --stdin=false --follow /var/log/app.log
  logship ship --config $HOME/.logship/config.toml --metrics-addr :9464
`)

// errInputsDone stops the run group once every input is exhausted.
var errInputsDone = errors.New("inputs exhausted")

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return logship.Version
}

func main() {
	root := &cobra.Command{
		Use:     "logship",
		Short:   "Batching log shipper",
		Long:    strings.TrimSpace(helpDescription),
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
	}
	root.AddCommand(newShipCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "logship:", err)
		os.Exit(1)
	}
}

func newShipCommand() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath, envFile string

	cmd := &cobra.Command{
		Use:          "ship",
		Short:        "Read messages from stdin and/or files and ship them",
		Example:      exampleUsage,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := cliconfig.LoadEnvFile(envFile); err != nil {
					return err
				}
			}

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			} else if cfgPath != "" {
				return fmt.Errorf("config file %s not found", cfgPath)
			}

			// Environment (LOGSHIP_*) overrides the file; flags override both.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			return runShip(cmd.Context(), cfg)
		},
	}

	d := cliconfig.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.logship/config.toml)")
	f.StringVar(&envFile, "env-file", "", "dotenv file loaded before reading LOGSHIP_* variables")

	f.StringVar(&cfg.APIKey, "api-key", d.APIKey, "API key for the collector")
	f.StringVar(&cfg.Endpoint, "endpoint", d.Endpoint, "collector URL")
	f.IntVar(&cfg.BatchSize, "batch-size", d.BatchSize, "messages per request")
	f.DurationVar(&cfg.FlushInterval, "flush-interval", d.FlushInterval, "maximum time between flushes")
	f.IntVar(&cfg.RequestsPerConn, "requests-per-conn", d.RequestsPerConn, "requests sent before a connection is rotated")
	f.IntVar(&cfg.QueueCapacity, "queue-capacity", d.QueueCapacity, "requests waiting for delivery")
	f.StringVar(&cfg.QueuePolicy, "queue-policy", d.QueuePolicy, "behaviour on a full queue: block or drop")
	f.BoolVar(&cfg.FlushContinuously, "flush-continuously", d.FlushContinuously, "deliver in the background; when false messages are sent on close")
	f.StringVar(&cfg.Encoding, "encoding", d.Encoding, "batch encoding: msgpack, msgpack-raw or cbor")
	f.BoolVar(&cfg.Compress, "compress", d.Compress, "gzip request bodies")

	f.DurationVar(&cfg.DialTimeout, "dial-timeout", d.DialTimeout, "TCP connect timeout")
	f.DurationVar(&cfg.TLSTimeout, "tls-timeout", d.TLSTimeout, "TLS handshake timeout")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", d.ReadTimeout, "response timeout")
	f.IntVar(&cfg.ShutdownAttempts, "shutdown-attempts", d.ShutdownAttempts, "idle checks on close")
	f.DurationVar(&cfg.ShutdownPollInterval, "shutdown-poll-interval", d.ShutdownPollInterval, "delay between idle checks on close")

	f.BoolVar(&cfg.Stdin, "stdin", d.Stdin, "read messages from stdin")
	f.StringSliceVar(&cfg.Follow, "follow", d.Follow, "files to follow (repeatable)")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", d.MetricsAddr, "address serving /metrics and /healthz (disabled when empty)")
	f.StringVar(&cfg.LogLevel, "log-level", d.LogLevel, "log level: debug, info, warn, error")

	return cmd
}

func runShip(parent context.Context, cfg cliconfig.Config) error {
	level, _ := cfg.Level()
	adapter := log.NewConsoleAdapter(level)
	logger := adapter.Logger()

	logCfg := cfg
	if logCfg.APIKey != "" {
		logCfg.APIKey = "*****"
	}
	logger.Info().Interface("config", logCfg).Msg("configuration")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []logship.Option{
		logship.WithLogger(adapter),
		logship.WithMetricsRecorder(metrics.NewCollector(registry, "")),
		logship.WithEventHandler(&eventLogger{logger: logger}),
	}
	opts = append(opts, filetail.WithFiles(cfg.Follow...)...)

	dev, err := logship.New(cfg.DeviceConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsMux(registry, dev),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Stdin {
		// The read cannot be interrupted; the goroutine is abandoned on signal.
		done := make(chan error, 1)
		go func() {
			n, err := linesource.Copy(gctx, dev, os.Stdin)
			logger.Info().Int("lines", n).Msg("stdin closed")
			done <- err
		}()
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-done:
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("read stdin: %w", err)
				}
				if len(cfg.Follow) == 0 {
					return errInputsDone
				}
				return nil
			}
		})
	}

	<-gctx.Done()
	if ctx.Err() != nil {
		logger.Info().Msg("received signal, stopping...")
	}

	closeErr := dev.Close()
	stats := dev.Stats()
	logger.Info().
		Int64("delivered", stats.Delivered).
		Int64("failed", stats.Failed).
		Int64("dropped", stats.Dropped).
		Msg("stopped")

	if err := g.Wait(); err != nil && !errors.Is(err, errInputsDone) {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}
	return nil
}

func newMetricsMux(reg *prometheus.Registry, dev *logship.Device) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := dev.Status()
		if status == logship.StateCrashed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, status.String())
	})
	return mux
}

// eventLogger reports delivery problems on the CLI log.
type eventLogger struct {
	logship.BaseEventHandler
	logger zerolog.Logger
}

func (e *eventLogger) OnStateChange(ev logship.StateChangeEvent) {
	e.logger.Debug().
		Str("from", ev.Previous.String()).
		Str("to", ev.Current.String()).
		Str("reason", ev.Reason).
		Msg("state change")
}

func (e *eventLogger) OnSendError(ev logship.SendErrorEvent) {
	e.logger.Warn().
		Err(ev.Error).
		Str("request_id", ev.RequestID).
		Int("messages", ev.Messages).
		Int("attempts", ev.Attempts).
		Dur("retry_in", ev.RetryIn).
		Msg("send failed")
}

func (e *eventLogger) OnDrop(ev logship.DropEvent) {
	e.logger.Warn().
		Str("request_id", ev.RequestID).
		Int("messages", ev.Messages).
		Msg("request dropped, queue full")
}
