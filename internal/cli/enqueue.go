package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/redisq"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [queue] [json-payload]",
	Short: "Push a message onto a relay queue",
	Args:  cobra.ExactArgs(2),
	Run:   runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	queueName := args[0]
	payload := []byte(args[1])

	if !json.Valid(payload) {
		fmt.Printf("Payload is not valid JSON: %s\n", args[1])
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client, err := redisq.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	msg, err := domain.NewQueueMessage(json.RawMessage(payload))
	if err != nil {
		slog.Error("Failed to build queue message", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	q := redisq.NewQueue(client, queueName)
	if err := q.Push(ctx, msg); err != nil {
		slog.Error("Failed to enqueue message", "error", err)
		os.Exit(1)
	}

	depth, err := q.Len(ctx)
	if err != nil {
		fmt.Printf("Successfully enqueued message on %s\n", queueName)
		return
	}
	fmt.Printf("Successfully enqueued message on %s (%d pending)\n", queueName, depth)
}
