// Command admin bootstraps officer accounts and resets passwords directly
// against the database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/coursekeeper/internal/admin"
	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/config"
	"github.com/dmitrijs2005/coursekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/coursekeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if err := run(context.Background()); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			os.Exit(2)
		}
		log.Printf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	// code verification is never needed here
	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	users := services.NewUserService(db, rm, nil, issuer, logger)

	return admin.New(users, os.Stdin, os.Stdout).Run(ctx, os.Args[1:])
}
