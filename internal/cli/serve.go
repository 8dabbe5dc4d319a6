package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"olympiad/internal/app"
	"olympiad/internal/auth"
	"olympiad/internal/db"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations on start")
	return cmd
}

func newBootstrapCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create or reset the admin account from BOOTSTRAP_ADMIN_* settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.BootstrapEmail == "" {
				return errors.New("BOOTSTRAP_ADMIN_EMAIL is not set")
			}
			conn, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := bootstrapAdmin(cmd.Context(), cfg, auth.NewService(conn, auth.ServiceConfig{})); err != nil {
				return err
			}
			log.Printf("admin account %s ready", cfg.Auth.BootstrapEmail)
			return nil
		},
	}
}

func runServer(ctx context.Context, configPath string, skipMigrate bool) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if !skipMigrate {
		if err := db.Migrate(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	}

	conn, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	} else {
		log.Printf("redis not configured: sessions and banks are kept in process")
	}

	handler, svcs, err := app.NewRouter(cfg, conn, rdb)
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, cfg, svcs.Auth); err != nil {
		return err
	}

	// No WriteTimeout: the attempt stream is a long-lived websocket.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("olympiad server listening on %s (%s)", cfg.HTTPAddr, cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg app.Config) (*sql.DB, error) {
	return db.OpenPostgres(ctx, cfg.Postgres.DSN, db.PostgresConfig{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: app.TTLDuration(cfg.Postgres.ConnMaxLifetime, 30*time.Minute),
	})
}

func bootstrapAdmin(ctx context.Context, cfg app.Config, svc *auth.Service) error {
	return svc.BootstrapAdmin(ctx, auth.BootstrapInput{
		Email:    cfg.Auth.BootstrapEmail,
		Password: cfg.Auth.BootstrapPassword,
		FullName: cfg.Auth.BootstrapName,
	})
}
