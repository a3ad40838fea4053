package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/contextlabs/ragway/internal/metadata"
	_ "modernc.org/sqlite"
)

// Applies the embedded metadata-store migrations to a SQLite file. The
// gateway runs these itself on startup; this command exists for provisioning
// a database ahead of deploy and for CI.
func main() {
	dbPath := flag.String("db", "", "path to the SQLite database (overrides env)")
	flag.Parse()

	path := *dbPath
	if path == "" {
		path = os.Getenv("RAGWAY_DB_PATH")
	}
	if path == "" {
		path = "collections.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := metadata.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	fmt.Printf("migrations applied to %s\n", path)
}
