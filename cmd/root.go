// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/cwlisten/internal/audio"
	"github.com/ColonelBlimp/cwlisten/internal/config"
	"github.com/ColonelBlimp/cwlisten/internal/recovery"
	"github.com/ColonelBlimp/cwlisten/internal/session"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

// flagKeys maps persistent flags to config keys
var flagKeys = map[string]string{
	"device":       "device_index",
	"frequency":    "tone_frequency",
	"wpm":          "wpm",
	"debug":        "debug",
	"pileup":       "pileup",
	"metrics-addr": "metrics_addr",
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     config.AppName,
		Short:   "CW (Morse code) decoder from audio input",
		Long:    `A real-time CW decoder that listens to a sound card or a WAV file and prints decoded text.`,
		Version: version,
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			for name, key := range flagKeys {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
			return initConfig()
		},
		RunE:          runLive,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags (override config file)
	flags := rootCmd.PersistentFlags()
	flags.IntP("device", "d", -1, "audio device index (-1 for default)")
	flags.Float64P("frequency", "f", 700, "initial CW tone frequency in Hz")
	flags.IntP("wpm", "w", 20, "initial WPM estimate")
	flags.BoolP("debug", "D", false, "enable debug output")
	flags.BoolP("pileup", "p", false, "decode several fixed speeds at once")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newFileCmd(), newDevicesCmd())
	return rootCmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// runLive decodes the sound card until interrupted.
func runLive(cmd *cobra.Command, _ []string) error {
	s, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), s.Level())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, shutdownMetrics, err := setupMetrics(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("metrics shutdown", "err", err)
		}
	}()

	sess, err := session.New(s.SessionConfig(), sessionOptions(cmd.OutOrStdout(), logger, metrics)...)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	chunker, err := audio.NewChunker(s.BufferSize, sess.Process)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	capture := audio.New(s.AudioConfig())
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer capture.Close()
	// A panic in the decode path still releases the sound card.
	defer recovery.HandlePanicFunc(func() { _ = capture.Close() })

	g, gctx := errgroup.WithContext(ctx)
	if s.MetricsAddr != "" {
		g.Go(recovery.Guard("metrics", func() error {
			return serveMetrics(gctx, s.MetricsAddr, logger)
		}))
	}
	if err := capture.Start(gctx); err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("audio start: %w", err)
	}
	logger.Info("listening",
		"device", s.DeviceIndex,
		"sample_rate", s.SampleRate,
		"tone_hz", s.ToneFrequency,
		"pileup", s.Pileup,
	)

	g.Go(recovery.Guard("decode", func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case block, ok := <-capture.Samples:
				if !ok {
					return nil
				}
				if err := chunker.Write(block); err != nil {
					return err
				}
			}
		}
	}))

	err = g.Wait()
	_ = chunker.Flush()
	_ = sess.Close()
	fmt.Fprintln(cmd.OutOrStdout())
	printSummary(cmd.ErrOrStderr(), sess)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
