package cli

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/shoppinglist/internal/api"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the built site with its service worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, log, err := opts.load(false)
			if err != nil {
				return err
			}
			flush, err := startTelemetry(settings, log)
			if err != nil {
				return err
			}
			defer flush()

			srv, err := api.New(settings, log)
			if err != nil {
				return err
			}
			return srv.Start(cmd.Context())
		},
	}
}
