package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/shoppinglist/internal/conf"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := conf.WriteTemplate(path, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(opts.stdout, "Wrote %s. Copy it to %s and fill in your Supabase values.\n",
				path, conf.DefaultConfigFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", conf.TemplateFile, "where to write the template")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
