// cmd/dbtools/migrate/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"

	"github.com/codr1/courtslots/internal/config"
	"github.com/codr1/courtslots/internal/db"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "Path to SQLite database (overrides -config)")
		configPath = flag.String("config", "", "Path to app config; its database.filename is used when -db is empty")
		command    = flag.String("command", "", "Command to run (up, down, steps, version, force)")
		n          = flag.Int("n", 0, "Step count for steps, target version for force")
	)
	flag.Parse()

	if *command == "" || (*dbPath == "" && *configPath == "") {
		flag.Usage()
		os.Exit(1)
	}

	path := *dbPath
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		path = cfg.Database.Filename
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	sqlDB, err := db.OpenRaw(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	m, err := db.NewMigrator(sqlDB)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "steps":
		if *n == 0 {
			log.Fatalf("steps requires -n")
		}
		if err := m.Steps(*n); err != nil {
			log.Fatalf("Migration steps failed: %v", err)
		}
	case "force":
		if err := m.Force(*n); err != nil {
			log.Fatalf("Force version failed: %v", err)
		}
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Get version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
		return
	default:
		log.Fatalf("Unknown command: %s", *command)
	}

	version, dirty, _ := m.Version()
	fmt.Printf("Migrated to version %d (dirty: %v)\n", version, dirty)
}
