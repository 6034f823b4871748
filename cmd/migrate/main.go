package main

import (
	"context"
	"flag"
	"log"

	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/migration"
	"github.com/Altanb21/TideBitEx-sub000/pkg/postgresql"
)

func main() {
	var (
		dir   = flag.String("dir", "migrations", "migration directory")
		down  = flag.Bool("down", false, "revert instead of apply")
		steps = flag.Int("steps", 0, "number of migrations (0 = all pending; down requires > 0)")
	)
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer client.Close()

	runner := migration.NewRunner(ctx, client, migration.Config{
		MigrationDir: *dir,
	})

	if err := runner.EnsureMigrationTable(); err != nil {
		log.Fatalf("Failed to ensure migration table: %v", err)
	}

	if *down {
		if err := runner.MigrateDown(*steps); err != nil {
			log.Fatalf("Failed to revert migrations: %v", err)
		}
		log.Println("Migrations reverted successfully")
		return
	}

	if err := runner.MigrateUp(*steps); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Println("Migrations applied successfully")
}
