// Package database opens and migrates the bridge's SQLite store.
//
// The bridge keeps one small local database: the state_history table, an
// append-only log of applied device state changes (see internal/history).
// SQLite fits that shape well: a single writer, embedded, nothing to
// operate. The connection is opened in WAL mode so history reads never
// block the publish path's writes, and with a busy timeout so a slow
// checkpoint surfaces as a wait instead of "database is locked".
//
// Schema changes ship as embedded migration files, applied at startup:
//
//	database.MigrationsFS = migrations.FS
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry defaults, and
// every version has both an .up.sql and a .down.sql so a bad deploy can
// step back without losing the history log.
package database
