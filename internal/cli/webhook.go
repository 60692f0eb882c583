package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"redis-job-pipeline/internal/domain"
	"redis-job-pipeline/internal/store"
	"redis-job-pipeline/internal/webhook"
)

func newWebhookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhook registrations",
	}
	cmd.AddCommand(newWebhookAddCmd(a), newWebhookToggleCmd(a, "enable", true), newWebhookToggleCmd(a, "disable", false))
	return cmd
}

func newWebhookAddCmd(a *app) *cobra.Command {
	var url, secret string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a webhook endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := webhook.NewValidator(a.cfg.Production()).Validate(cmd.Context(), url); err != nil {
				return err
			}
			db, err := a.database()
			if err != nil {
				return err
			}
			w := &domain.Webhook{ID: uuid.NewString(), URL: url, Secret: secret, IsActive: true}
			if err := db.CreateWebhook(cmd.Context(), w); err != nil {
				return err
			}
			a.logger.Info("Webhook registered", "event", "webhook_registered", "webhook", w)
			fmt.Fprintf(cmd.OutOrStdout(), "Registered webhook %s\n", w.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Endpoint receiving signed POSTs")
	cmd.Flags().StringVar(&secret, "secret", "", "Shared HMAC-SHA256 signing secret")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

func newWebhookToggleCmd(a *app, use string, active bool) *cobra.Command {
	short := "Resume deliveries to a webhook"
	if !active {
		short = "Stop deliveries to a webhook; queued jobs complete without sending"
	}
	return &cobra.Command{
		Use:   use + " <webhook-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			err = db.SetWebhookActive(cmd.Context(), args[0], active)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("webhook %s not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook %s %sd\n", args[0], use)
			return nil
		},
	}
}

func newDeliveriesCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "deliveries <webhook-id>",
		Short: "Print the delivery ledger of a webhook, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			out, err := db.Deliveries(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum records to print")
	return cmd
}
