package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"redis-job-pipeline/internal/config"
	"redis-job-pipeline/internal/queue"
	"redis-job-pipeline/internal/store"
)

// app holds the connections shared by every subcommand. Redis and the
// database are opened on first use so commands touching only one of them
// do not need the other.
type app struct {
	cfg       config.Config
	redisAddr string
	dbURL     string
	logger    *slog.Logger

	rdb *redis.Client
	q   *queue.RedisQueue
	db  *store.DB
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "Operate the background job pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.Load()
			if a.redisAddr != "" {
				a.cfg.RedisAddr = a.redisAddr
			}
			if a.dbURL != "" {
				a.cfg.DatabaseURL = a.dbURL
			}
			a.logger = config.NewLogger(a.cfg.LogLevel)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.redisAddr, "redis", "", "Redis address (default $REDIS_ADDR)")
	root.PersistentFlags().StringVar(&a.dbURL, "db", "", "Database DSN (default $DATABASE_URL)")

	root.AddCommand(
		newEnqueueCmd(a),
		newStatusCmd(a),
		newDLQCmd(a),
		newWebhookCmd(a),
		newDeliveriesCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) queue(ctx context.Context) (*queue.RedisQueue, error) {
	if a.q != nil {
		return a.q, nil
	}
	rdb, err := queue.NewRedisClient(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.q = queue.NewRedisQueue(rdb, store.NewStatusStore(rdb), queue.OptionsFromConfig(a.cfg), a.logger)
	return a.q, nil
}

func (a *app) database() (*store.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
