package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/cwlisten/internal/audio"
	"github.com/ColonelBlimp/cwlisten/internal/config"
	"github.com/ColonelBlimp/cwlisten/internal/session"
)

func newFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <recording.wav>",
		Short: "Decode a WAV recording",
		Long:  `Decode a PCM WAV recording at its own sample rate. Multi-channel files are mixed down to mono.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runFile,
	}
}

func runFile(cmd *cobra.Command, args []string) error {
	s, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), s.Level())

	path := args[0]
	src, err := audio.OpenWAV(path)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer src.Close()

	// The recording's rate wins over the configured capture rate
	s.SampleRate = float64(src.SampleRate())
	attrs := []any{
		"path", path,
		"sample_rate", src.SampleRate(),
		"channels", src.Channels(),
		"bit_depth", src.BitDepth(),
	}
	if info, err := os.Stat(path); err == nil {
		attrs = append(attrs, "size", humanize.Bytes(uint64(info.Size())))
	}
	logger.Debug("decoding file", attrs...)

	sess, err := session.New(s.SessionConfig(), sessionOptions(cmd.OutOrStdout(), logger, nil)...)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamErr := src.Stream(ctx, s.BufferSize, sess.Process)
	_ = sess.Close()
	fmt.Fprintln(cmd.OutOrStdout())
	printSummary(cmd.ErrOrStderr(), sess)

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		return fmt.Errorf("audio: %w", streamErr)
	}
	return nil
}
