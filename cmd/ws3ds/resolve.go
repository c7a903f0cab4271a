package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
)

func resolveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Show the local address, subnet prefix and mDNS hints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(cmd, opts, os.Stderr, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			res, err := discovery.Resolve(ctx, a.resolver(), a.cfg.Discovery.ResolveGrace)
			if err != nil {
				fmt.Fprintf(out, "Local address: unresolved (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Local address: %s\n", res.IP)
				fmt.Fprintf(out, "Prefix:        %s0/24 (%d candidates on port %d)\n",
					res.Prefix, discovery.SubnetSize, a.cfg.Discovery.Port)
			}

			browser := &discovery.MDNSBrowser{
				Interface: a.cfg.Discovery.Interface,
				Timeout:   a.cfg.Discovery.MDNSTimeout,
				Logger:    a.logger,
			}
			hints := browser.Hints(ctx, a.cfg.Discovery.Port)
			if len(hints) == 0 {
				fmt.Fprintln(out, "mDNS hints:    none")
				return nil
			}
			fmt.Fprintln(out, "mDNS hints:")
			for _, h := range hints {
				fmt.Fprintf(out, "  %s\n", h)
			}
			return nil
		},
	}
}
