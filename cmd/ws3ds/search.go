package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ws3ds/ws3ds-go/cmd/ws3ds/interactive"
	"github.com/ws3ds/ws3ds-go/pkg/session"
)

func searchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Open an interactive session with the device",
		Long: `Start a search immediately and open a prompt.

Commands at the prompt: search [host], cancel, status, text <message>,
image <file>, quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			// Output goes through the prompt once the console exists.
			out := &lazyWriter{w: os.Stderr}
			a, err := newApp(cmd, opts, out, stdoutSink(out))
			if err != nil {
				return err
			}
			defer a.Close()

			console, err := interactive.New(a.client, a.startOptions())
			if err != nil {
				return err
			}
			out.set(console.Stdout())
			a.client.OnStateChange(func(oldState, newState session.State) {
				console.Notify(oldState, newState)
			})

			console.Exec(ctx, "search")
			console.Run(ctx, cancel)
			return nil
		},
	}
}
