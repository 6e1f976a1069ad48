package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/shoppinglist/internal/build"
)

type buildFlags struct {
	template string
	output   string
}

func newBuildCommand(opts *rootOptions) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Inject the Supabase settings into the page template",
		Long: `Reads the Supabase URL and anon key from the config file and writes the
concrete page by substituting them into the template. When the template is
missing it is derived once from an existing page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), opts, flags)
		},
	}
	cmd.Flags().StringVar(&flags.template, "template", "", "template path (default build.template)")
	cmd.Flags().StringVar(&flags.output, "output", "", "output path (default build.output)")
	return cmd
}

func runBuild(ctx context.Context, opts *rootOptions, flags buildFlags) error {
	settings, log, err := opts.load(true)
	if err != nil {
		return err
	}

	bopts := build.Options{
		TemplatePath: settings.Build.Template,
		OutputPath:   settings.Build.Output,
		Supabase:     settings.Supabase,
	}
	if flags.template != "" {
		bopts.TemplatePath = flags.template
	}
	if flags.output != "" {
		bopts.OutputPath = flags.output
	}

	res, err := build.NewBuilder(log).Run(ctx, bopts)
	if err != nil {
		return err
	}
	if res.TemplateCreated {
		_, _ = fmt.Fprintf(opts.stdout, "Created template %s\n", res.TemplatePath)
	}
	_, _ = fmt.Fprintf(opts.stdout, "Built %s\n", res.OutputPath)
	return nil
}
