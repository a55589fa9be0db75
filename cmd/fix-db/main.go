package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Утилита для ручного сброса dirty-состояния миграций:
//
//	go run ./cmd/fix-db <version>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: fix-db <version>")
	}
	version, err := strconv.Atoi(os.Args[1])
	if err != nil {
		log.Fatalf("invalid version '%s': %v", os.Args[1], err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("DATABASE_HOST", "localhost"),
		envOr("DATABASE_PORT", "5432"),
		envOr("DATABASE_USER", "postgres"),
		os.Getenv("DATABASE_PASSWORD"),
		envOr("DATABASE_DBNAME", "faucet_db"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Forcing migration version to %d to clean dirty state...\n", version)

	if err := m.Force(version); err != nil {
		log.Fatalf("Failed to force version: %v", err)
	}

	fmt.Println("Success! Dirty state cleaned. You can now run the app normally.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
