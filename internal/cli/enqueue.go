package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"redis-job-pipeline/internal/export"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/rename"
	"redis-job-pipeline/internal/webhook"
)

type enqueueFlags struct {
	delay       time.Duration
	maxAttempts int
	timeout     time.Duration
}

func (f *enqueueFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "Delay before the job becomes eligible")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "Override the queue's attempt ceiling (0 keeps the default)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-run timeout")
}

func (f *enqueueFlags) options(cmd *cobra.Command) []queue.EnqueueOption {
	var opts []queue.EnqueueOption
	if f.delay > 0 {
		opts = append(opts, queue.WithDelay(f.delay))
	}
	if cmd.Flags().Changed("max-attempts") {
		opts = append(opts, queue.WithMaxAttempts(f.maxAttempts))
	}
	if f.timeout > 0 {
		opts = append(opts, queue.WithTimeout(f.timeout))
	}
	return opts
}

func newEnqueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a job",
	}
	cmd.AddCommand(newEnqueueRenameCmd(a), newEnqueueWebhookCmd(a), newEnqueueExportCmd(a))
	return cmd
}

func (a *app) enqueue(cmd *cobra.Command, kind queue.Kind, payload interface{}, opts []queue.EnqueueOption) error {
	q, err := a.queue(cmd.Context())
	if err != nil {
		return err
	}
	id, err := q.Enqueue(cmd.Context(), kind, payload, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s job %s\n", kind, id)
	return nil
}

func newEnqueueRenameCmd(a *app) *cobra.Command {
	var (
		f       enqueueFlags
		payload rename.Payload
	)
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename every stored file whose name contains a substring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.enqueue(cmd, queue.KindFileRename, payload, f.options(cmd))
		},
	}
	cmd.Flags().StringVar(&payload.OldPattern, "old", "", "Substring to replace")
	cmd.Flags().StringVar(&payload.NewPattern, "new", "", "Replacement")
	_ = cmd.MarkFlagRequired("old")
	f.register(cmd)
	return cmd
}

func newEnqueueWebhookCmd(a *app) *cobra.Command {
	var (
		f    enqueueFlags
		p    webhook.Payload
		body string
	)
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Queue a delivery to a registered webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(body)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			p.Payload = json.RawMessage(body)
			return a.enqueue(cmd, queue.KindWebhooks, p, f.options(cmd))
		},
	}
	cmd.Flags().StringVar(&p.WebhookID, "webhook-id", "", "Target webhook id")
	cmd.Flags().StringVar(&p.Event, "event", "", "Event name sent in the X-Event header")
	cmd.Flags().StringVar(&body, "payload", "{}", "JSON event payload")
	_ = cmd.MarkFlagRequired("webhook-id")
	_ = cmd.MarkFlagRequired("event")
	f.register(cmd)
	return cmd
}

func newEnqueueExportCmd(a *app) *cobra.Command {
	var (
		f       enqueueFlags
		payload export.Payload
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive matching files into a zip object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.enqueue(cmd, queue.KindZipExport, payload, f.options(cmd))
		},
	}
	cmd.Flags().StringVar(&payload.Pattern, "pattern", "", "Substring selecting files (empty selects all)")
	cmd.Flags().StringVar(&payload.ObjectKey, "object-key", "", "Destination key of the archive")
	_ = cmd.MarkFlagRequired("object-key")
	f.register(cmd)
	return cmd
}
