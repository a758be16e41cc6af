package main

// Run session store migrations:
//   go run ./cmd/migrate

import (
	"context"
	"log"
	"os"

	"jobtailor/internal/shared/config"
	"jobtailor/internal/shared/storage/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	driver, dsn := db.DriverSQLite, ""
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		driver, dsn = db.DriverPostgres, cfg.DatabaseURL
	case config.SessionStoreSQLite:
		dsn, err = db.SQLiteDSN(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite path: %v", err)
		}
	default:
		log.Printf("session store %q has no schema; nothing to migrate", cfg.SessionStore)
		return
	}

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, driver, dsn, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB, driver); err != nil {
		log.Printf("failed to run migrations: %v", err)
		os.Exit(1)
	}
	log.Printf("migrations applied (%s)", driver)
}
