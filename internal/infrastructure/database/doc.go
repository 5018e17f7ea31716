// Package database provides SQLite connectivity for the Synapse service.
//
// The database holds the entity registry: the stable entity_id assigned to
// each adapter unique_id so the same device keeps its identity across
// restarts.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations embedded in the binary (see the migrations package)
//   - Health checks for the API
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be nullable or have defaults,
// and each .up.sql file has a matching .down.sql.
package database
