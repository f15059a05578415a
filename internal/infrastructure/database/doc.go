// Package database manages the SQLite connection for the operation history
// store.
//
// Fleet state (devices, groups, capabilities) lives in YAML files; SQLite
// only records operation outcomes, which are append-heavy and queried by
// device and time. WAL mode keeps readers unblocked during group runs.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "data/shellyfleet.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
