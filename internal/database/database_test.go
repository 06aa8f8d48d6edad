package database

import (
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestDSN(t *testing.T) {
	t.Parallel()
	dsn := DSN("app", "p@ss", "db", "3306", "tickets")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if cfg.User != "app" || cfg.Passwd != "p@ss" || cfg.Addr != "db:3306" || cfg.DBName != "tickets" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.ParseTime || cfg.Loc != time.UTC {
		t.Fatalf("expected parseTime in UTC, got %v %v", cfg.ParseTime, cfg.Loc)
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	t.Parallel()
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0001_ticket_types.sql", "0002_orders.sql", "0003_tickets.sql", "0004_users.sql", "0005_refresh_tokens.sql"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for _, name := range names {
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if strings.Count(strings.TrimSuffix(strings.TrimSpace(string(body)), ";"), ";") != 0 {
			t.Fatalf("%s must hold a single statement", name)
		}
	}
}
