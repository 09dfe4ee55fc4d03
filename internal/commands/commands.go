package commands

import (
	"context"

	"github.com/spf13/cobra"

	"reminderd/internal/app"
)

type globalOptions struct {
	ConfigPath string
	JSON       bool
}

func New() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "reminderd",
		Short:         "Reminder lifecycle daemon and reporting tool.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", "./config.yaml", "path to the config file (json or yaml)")
	cmd.PersistentFlags().BoolVar(&g.JSON, "json", false, "print machine-readable JSON")

	AddCommands(cmd, g)
	return cmd
}

func AddCommands(topLevel *cobra.Command, g *globalOptions) {
	addRun(topLevel, g)
	addReports(topLevel, g)
	addHistory(topLevel, g)
	addSnooze(topLevel, g)
	addToken(topLevel, g)
}

// withTools opens the durable state for one command invocation.
func withTools(g *globalOptions, fn func(t *app.Tools) error) error {
	t, err := app.OpenTools(g.ConfigPath)
	if err != nil {
		return err
	}
	defer t.Close()
	return fn(t)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
