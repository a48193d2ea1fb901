package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/rpps-atas-assistant/internal/bootstrap"
	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	natsqueue "github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/queue/nats"
)

func newAskCmd(cfg config.Config) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "ask <pergunta>",
		Short: "Answer one question locally, or through the NATS workers with --remote",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if remote {
				return askRemote(cmd.Context(), cfg, question, cmd.OutOrStdout())
			}
			app, err := bootstrap.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			answer := app.AnswerUC.Ask(cmd.Context(), question)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
			return err
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "send the question to NATS_ASK_SUBJECT instead of loading the index")
	return cmd
}

func askRemote(ctx context.Context, cfg config.Config, question string, out io.Writer) error {
	if cfg.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required for --remote")
	}
	retry := false
	bus, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSAskSubject, natsqueue.Options{
		RetryOnFailedConnect: &retry,
		ResilienceExecutor:   bootstrap.NewExecutor(cfg),
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.NATSAskTimeout)
	defer cancel()
	reply, err := bus.Ask(ctx, question)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, reply.Answer)
	return err
}
