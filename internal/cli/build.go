package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstats-labs/statcube/internal/config"
	"github.com/openstats-labs/statcube/pkg/core"
)

func newBuildCommand(cfgFn func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "build <revision-id>",
		Short: "Assemble the cube for a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), cfgFn())
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.builder.Build(cmd.Context(), args[0])

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))

			if result.Status != core.BuildStatusCompleted {
				return fmt.Errorf("build %s", result.Status)
			}
			for _, w := range result.Warnings {
				cmd.PrintErrln("warning:", w)
			}
			return nil
		},
	}
}
