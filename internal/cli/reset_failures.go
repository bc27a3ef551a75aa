package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/failsafe/internal/core/config"
	redisclient "github.com/vietddude/failsafe/internal/infra/redis"
	"github.com/vietddude/failsafe/internal/infra/storage/postgres"
)

var resetFailuresCmd = &cobra.Command{
	Use:   "reset-failures",
	Short: "Clear the failure history, cooldown claims and exhausted-operation queue",
	Run:   runResetFailures,
}

func init() {
	rootCmd.AddCommand(resetFailuresCmd)
}

func runResetFailures(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, postgres.Config{URL: cfg.Database.URL})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := postgres.NewFailureRepo(db).Clear(ctx); err != nil {
			slog.Error("Failed to clear error events", "error", err)
			os.Exit(1)
		}
		fmt.Println("Cleared error events")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(redisclient.Config{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = client.Close()
		}()

		if err := redisclient.NewCooldowns(client).Clear(ctx); err != nil {
			slog.Error("Failed to clear cooldowns", "error", err)
			os.Exit(1)
		}
		if err := client.ClearExhausted(ctx); err != nil {
			slog.Error("Failed to clear exhausted queue", "error", err)
			os.Exit(1)
		}
		fmt.Println("Cleared cooldowns and exhausted queue")
	}
}
