// Package database provides the SQLite store behind motor event history and
// the command audit trail.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Embedded schema migrations (.up.sql / .down.sql pairs)
//   - Connection lifecycle and health checks
//
// The bank's live state is never persisted; motors start Unknown and learn
// their state from the controller's StatePoll reply. Only history rows live
// here.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
