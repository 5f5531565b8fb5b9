package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chordfold/chordfold/internal/auth"
	"github.com/chordfold/chordfold/internal/config"
	"github.com/chordfold/chordfold/internal/database"
	"github.com/chordfold/chordfold/internal/draft"
	"github.com/chordfold/chordfold/internal/logging"
	"github.com/chordfold/chordfold/internal/server"
	"github.com/chordfold/chordfold/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chordfold-api",
		Short: "Chordfold sheet editor backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().Int("draft-retention-days", defaults.GetInt("drafts.retention_days"), "Days before unclaimed drafts are purged")
	cmd.PersistentFlags().Int("draft-volatile-budget-mb", defaults.GetInt("drafts.volatile_budget_mb"), "Volatile draft tier budget in megabytes")
	cmd.PersistentFlags().Int("draft-compaction-minutes", defaults.GetInt("drafts.compaction_interval_minutes"), "Minutes between draft compaction sweeps")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "drafts.retention_days", "draft-retention-days")
	bindFlag(cmd, "drafts.volatile_budget_mb", "draft-volatile-budget-mb")
	bindFlag(cmd, "drafts.compaction_interval_minutes", "draft-compaction-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newTokenCommand mints a bearer token for local development and scripts.
func newTokenCommand() *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an owner",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			manager, err := auth.NewTokenManager(auth.TokenManagerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := manager.Issue(ownerID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%d\n", token, expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner identifier the token is issued for")
	if err := cmd.MarkFlagRequired("owner"); err != nil {
		panic(err)
	}
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	sheetService, err := sheets.NewService(sheets.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: sheets.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	draftStore, err := draft.NewTieredStore(draft.StoreConfig{
		Database:           db,
		Logger:             logger,
		VolatileBudget:     appConfig.VolatileBudget,
		Retention:          appConfig.DraftRetention,
		CompactionInterval: appConfig.CompactionInterval,
	})
	if err != nil {
		return err
	}
	draftStore.Start()
	defer draftStore.Stop()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		SheetService: sheetService,
		DraftStore:   draftStore,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
