// Package database opens the transceiver's SQLite database and applies its
// schema migrations.
//
// The database is optional; it only backs the delivery journal. WAL mode
// and a busy timeout are set through the connection string, and the pool
// is a single connection because SQLite has one writer.
//
// Migrations are additive and embedded in the binary by the migrations
// package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
