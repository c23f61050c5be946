package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/cwlisten/internal/audio"
	"github.com/ColonelBlimp/cwlisten/internal/config"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE:  runDevices,
	}
}

func runDevices(cmd *cobra.Command, _ []string) error {
	s, err := config.Get()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	capture := audio.New(s.AudioConfig())
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer capture.Close()

	devices, err := capture.ListDevices()
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintln(out, "no capture devices found")
		return nil
	}
	for _, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		fmt.Fprintf(out, "%d: %s%s\n", d.Index, d.Name, marker)
	}
	return nil
}
