package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ColonelBlimp/cwlisten/internal/config"
	"github.com/ColonelBlimp/cwlisten/internal/dsp"
	"github.com/ColonelBlimp/cwlisten/internal/observe"
	"github.com/ColonelBlimp/cwlisten/internal/recovery"
	"github.com/ColonelBlimp/cwlisten/internal/session"
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	recovery.SetLogger(logger)
	return logger
}

// sessionOptions wires decoded text to w and key transitions to the debug log.
func sessionOptions(w io.Writer, logger *slog.Logger, metrics *observe.Metrics) []session.Option {
	return []session.Option{
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithOutput(printOutput(w)),
		session.WithStateListener(func(e dsp.StateEvent) {
			logger.Debug("key", "on", e.On, "level", e.Level, "threshold", e.Threshold, "gain", e.Gain, "at", e.At)
		}),
	}
}

// printOutput writes decoded characters as they arrive.
func printOutput(w io.Writer) func(session.Output) {
	return func(out session.Output) {
		_, _ = io.WriteString(w, string(out.Character))
	}
}

func printSummary(w io.Writer, sess *session.Session) {
	st := sess.Stats()
	fmt.Fprintf(w, "%s characters (%s unknown), %s words, %s blocks in %s at %d WPM\n",
		humanize.Comma(int64(st.Characters)),
		humanize.Comma(int64(st.Unknown)),
		humanize.Comma(int64(st.Words)),
		humanize.Comma(st.Blocks),
		st.Elapsed.Round(time.Millisecond),
		sess.CurrentWPM(),
	)
}

// setupMetrics installs the Prometheus-backed meter provider when a metrics
// address is configured. Without one the session records to a no-op provider.
func setupMetrics(ctx context.Context, s *config.Settings) (*observe.Metrics, func(context.Context) error, error) {
	if s.MetricsAddr == "" {
		return nil, func(context.Context) error { return nil }, nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    config.AppName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	return observe.DefaultMetrics(), shutdown, nil
}

// serveMetrics serves /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving metrics", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
