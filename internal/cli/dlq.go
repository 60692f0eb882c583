package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"redis-job-pipeline/internal/store"
)

func newDLQCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered jobs",
	}

	var limit int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.queue(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := q.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
	list.Flags().Int64Var(&limit, "limit", 100, "Maximum entries to print")

	retry := &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Requeue a dead letter with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.queue(cmd.Context())
			if err != nil {
				return err
			}
			id, err := q.RetryDeadLetter(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("dead letter %s not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued job %s\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}
