package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ws3ds/ws3ds-go/pkg/frame"
)

func sendTextCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send-text <message>...",
		Short: "Connect, send one text message and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(cmd, opts, os.Stderr, stdoutSink(os.Stdout))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connect(ctx); err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if err := a.client.SendText(text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s\n", len(text), a.client.Status().Address)
			return nil
		},
	}
}

func sendImageCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send-image <file>",
		Short: "Connect, send one image file and exit",
		Long: `Decode the image (PNG, JPEG, GIF, BMP or WebP), fit it to the
400x240 top screen and send it as one binary frame.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			// Decode before connecting so a bad file fails fast.
			data, err := frame.LoadFrame(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd, opts, os.Stderr, stdoutSink(os.Stdout))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connect(ctx); err != nil {
				return err
			}
			if err := a.client.SendFrame(data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%d bytes) to %s\n", args[0], len(data), a.client.Status().Address)
			return nil
		},
	}
}
