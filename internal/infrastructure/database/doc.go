// Package database opens the controller's SQLite store and runs its
// embedded schema migrations.
//
// The store holds the scheduled periods, the automation state record and
// the deduplicated decision log. It lives on the controller host (not the
// NAS, which this controller powers off), so a single connection with WAL
// mode and a busy timeout is all the concurrency it needs. The database
// file is created 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the migrations package and applied in
// filename order, each in its own transaction, with applied versions
// recorded in schema_migrations. Every migration ships both an .up.sql
// and a .down.sql.
package database
