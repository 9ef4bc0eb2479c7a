package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/analytics"
	"github.com/sreekar-ss/devbytes-blog/database"
	"github.com/sreekar-ss/devbytes-blog/utils"
)

var (
	withContentTables bool
	tokenRole         string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the analytics tables",
	Long: `Creates reading_sessions and analytics_events in the configured SQL database,
and analytics_events in ClickHouse when CLICKHOUSE_HOST is set. Statements are
idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context(), withContentTables); err != nil {
			return err
		}
		log.Info("SQL schema applied", zap.Bool("content_tables", withContentTables))

		if cfg.ClickHouse.Enabled() {
			chClient, err := database.NewClickHouseDB(cfg.ClickHouse, log)
			if err != nil {
				return fmt.Errorf("failed to initialize ClickHouse database: %w", err)
			}
			defer chClient.Close()
			if err := chClient.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("ClickHouse schema applied")
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a signed JWT for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if tokenRole != utils.RoleAuthor && tokenRole != utils.RoleAdmin {
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		tokens, err := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		token, err := tokens.GenerateJWT(args[0], tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var hashAddressCmd = &cobra.Command{
	Use:   "hash-address <ip>",
	Short: "Print the stored hash of a client address",
	Long: `Prints the ip_hash value the service would store for the address, using the
configured IP_HASH_SALT. Useful for finding one client's rows.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		fmt.Fprintln(cmd.OutOrStdout(), analytics.HashAddress(args[0], cfg.Analytics.IPHashSalt))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&withContentTables, "content-tables", false, "also create a minimal posts table for standalone use")
	tokenCmd.Flags().StringVar(&tokenRole, "role", utils.RoleAuthor, "role claim: author or admin")
}
