package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/pkg/config"
	"microblog/pkg/model"
	"microblog/pkg/repo"
	"microblog/pkg/server"
	"microblog/pkg/service"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "microblog",
		Short: "Session-authenticated blogging backend",
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd(), createUserCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations, then listen for HTTP requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				log.SetLevel(lvl)
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := migrate(db); err != nil {
				return err
			}
			log.Info("migrations complete")

			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Port),
				Handler: server.New(cfg, db, log).Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("listening on port %d", cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Infof("received %s, shutting down", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := migrate(db); err != nil {
				return err
			}
			log.Info("migrations complete")
			return nil
		},
	}
}

// createUserCmd bootstraps the first account; every API endpoint, user
// creation included, sits behind the auth gate.
func createUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-user <username> <password>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := migrate(db); err != nil {
				return err
			}

			auth := service.NewAuthenticator(repo.NewUserRepository(db))
			id, err := auth.Register(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			log.WithField("user_id", id).Info("user created")
			return nil
		},
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DBDSN), &gorm.Config{})
	case "sqlite":
		// sqlite leaves foreign keys off unless the pragma is set, which
		// would let orphan posts and comments through.
		dsn := cfg.DBDSN
		if strings.Contains(dsn, "?") {
			dsn += "&_foreign_keys=on"
		} else {
			dsn += "?_foreign_keys=on"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.User{}, &model.Post{}, &model.Comment{})
}
