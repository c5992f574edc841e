package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"webcash-wallet/config"
	redisStorage "webcash-wallet/internal/adapter/storage/redis"
	"webcash-wallet/internal/app"
	"webcash-wallet/internal/service"
	"webcash-wallet/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "walletd",
		Short:         "Local webcash wallet daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (env WCW_* overrides)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Open the wallet and serve the control API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "hash-password [password]",
			Short: "Print an argon2id hash for auth.password_hash",
			Long:  "Print an argon2id hash for auth.password_hash. Without an argument the password is read from the first line of stdin.",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runHashPassword,
		},
	)
	return root
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := service.NewArgon2HashService().Hash(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().
		Str("backend", cfg.Wallet.Backend).
		Str("mode", cfg.Server.Mode).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting walletd")

	w, err := app.OpenWallet(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open wallet")
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close wallet cleanly")
		}
	}()

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")
	}

	srv := app.NewHTTPServer(cfg.Server, app.NewRouter(cfg, w, rdb, log))

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}
