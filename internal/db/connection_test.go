package db

import (
	"strings"
	"testing"
)

func TestConfigURL(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "importer", Password: "p@ss", DBName: "orders", SSLMode: "require"}

	if got := cfg.URL("pgx5"); got != "pgx5://importer:p%40ss@db:5433/orders?sslmode=require" {
		t.Fatalf("unexpected migration url %q", got)
	}

	cfg.SSLMode = ""
	if got := cfg.URL("postgres"); got != "postgres://importer:p%40ss@db:5433/orders" {
		t.Fatalf("unexpected pool url %q", got)
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}

	var up, down int
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Fatalf("expected paired up/down migrations, got %d up and %d down", up, down)
	}
}
