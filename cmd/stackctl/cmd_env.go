package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stackctl/cmd/stackctl/ui"
	"stackctl/internal/envfile"
)

var envCmd = &cobra.Command{
	Use:   "env [dev|staging|prod]",
	Short: "Show an environment's variables with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := parseEnvArg(cmd, args)
		if err != nil {
			return err
		}
		vars, err := envfile.Load(workspace, env)
		if err != nil {
			return err
		}

		t := ui.NewSimpleTable(fmt.Sprintf("%s (%s)", env.FileName(), envfile.Path(workspace, env)), []string{"Key", "Value"})
		for _, k := range vars.Keys() {
			t.AddRow(k, vars.Masked(k))
		}
		fmt.Fprint(cmd.OutOrStdout(), t.View(ui.DefaultStyles()))
		return nil
	},
}
