package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/app"
	"github.com/KamdynS/weather-agents/graph"
)

func newGraphCmd(opts *rootOptions) *cobra.Command {
	var format, dir, mode string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the agent topology",
		Long:  `Print the configured agent topology as a Mermaid flowchart or Graphviz DOT digraph.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Router.Mode = mode
			}
			a, err := app.Build(cmd.Context(), cfg, app.WithLogger(zap.NewNop()))
			if err != nil {
				return err
			}
			defer a.Close()

			var gopts []graph.Option
			if dir != "" {
				gopts = append(gopts, graph.WithDirection(dir))
			}
			out, err := graph.Render(a.Topology(), format, gopts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "output format (mermaid, dot)")
	cmd.Flags().StringVar(&dir, "dir", "", "graph direction (TD, LR, BT, RL)")
	cmd.Flags().StringVar(&mode, "mode", "", "override router.mode")
	return cmd
}
