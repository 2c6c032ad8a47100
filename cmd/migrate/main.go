// Command migrate applies or rolls back the orchestration core's SQL
// schema independently of cmd/server, for use in deploy pipelines that
// migrate before rolling out a new image.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/R3E-Network/automation-core/internal/platform/database"
	"github.com/R3E-Network/automation-core/internal/platform/migrations"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (falls back to DATABASE_URL)")
	dir := flag.String("dir", "migrations", "directory containing the .up.sql/.down.sql files")
	down := flag.Bool("down", false, "roll back the most recently applied migration instead of applying pending ones")
	flag.Parse()

	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsnVal == "" {
		log.Fatalf("a DSN is required via -dsn or DATABASE_URL")
	}

	db, err := database.Open(context.Background(), dsnVal)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()

	if *down {
		if err := migrations.Down(db, *dir); err != nil {
			log.Fatalf("rollback: %v", err)
		}
		log.Println("rolled back one migration")
		return
	}

	if err := migrations.Apply(db, *dir); err != nil {
		log.Fatalf("apply: %v", err)
	}
	log.Println("migrations applied")
}
