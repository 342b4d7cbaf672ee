package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/app"
	"github.com/KamdynS/weather-agents/tui"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := app.Build(cmd.Context(), cfg, app.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to build agents: %w", err)
			}
			defer a.Close()

			reply, err := a.Chat.Send(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "session=%s state=%s specialists=%s\n",
					reply.SessionID, reply.State, strings.Join(reply.Specialists, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print session id, state and specialists to stderr")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			// Log lines would draw over the alternate screen.
			a, err := app.Build(cmd.Context(), cfg, app.WithLogger(zap.NewNop()))
			if err != nil {
				return fmt.Errorf("failed to build agents: %w", err)
			}
			defer a.Close()
			return tui.Run(cmd.Context(), a.Chat, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session")
	return cmd
}
