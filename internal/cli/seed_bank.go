package cli

import (
	"fmt"
	"os"

	"github.com/Scofield321/cipherford/internal/config"
	"github.com/Scofield321/cipherford/internal/infra/memory"
	"github.com/Scofield321/cipherford/internal/infra/postgres"
	redisinfra "github.com/Scofield321/cipherford/internal/infra/redis"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSeedBankCmd loads a YAML question bank into community_quizzes.
func NewSeedBankCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-bank",
		Short: "Load question bank fixtures into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if file == "" {
				file = cfg.Bank.File
			}
			if file == "" {
				return fmt.Errorf("no bank file given (use --file or bank.file)")
			}

			questions, err := memory.NewFileBankLoader(file).LoadBank(ctx)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}

			db := postgres.OpenDB(cfg.Postgres.URL)
			defer db.Close()
			n, err := postgres.SeedBank(ctx, db, questions)
			if err != nil {
				return err
			}

			// drop the shared cache so running instances pick up the new bank
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				bank := redisinfra.NewBankRepository(client, nil, 0)
				if err := bank.Invalidate(ctx); err != nil {
					logger.Warn("could not invalidate bank cache", "error", err)
				}
			}
			logger.Info("question bank seeded", "file", file, "rows", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML bank file (defaults to bank.file)")
	return cmd
}
