package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/pump-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func InsertEvent(db *sql.DB, ev model.EventRecord) (int64, error) {
	res, err := db.Exec(`INSERT INTO events (at, kind, active, fault, temperature, flow_rate, cycle_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.UTC().Format(time.RFC3339Nano), ev.Kind, ev.Active, ev.Fault, ev.Temperature, ev.FlowRate, ev.CycleCount)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// AddDailyStatsWithTx adds delta onto the stored row for delta.Day,
// creating it if needed. Temperature extremes are merged, not summed.
func AddDailyStatsWithTx(tx *sql.Tx, delta DailyStats) error {
	_, err := tx.Exec(`INSERT INTO daily_stats (day, on_seconds, off_seconds, cycles, faults, gallons, min_temperature, max_temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			on_seconds = on_seconds + excluded.on_seconds,
			off_seconds = off_seconds + excluded.off_seconds,
			cycles = cycles + excluded.cycles,
			faults = faults + excluded.faults,
			gallons = gallons + excluded.gallons,
			min_temperature = MIN(COALESCE(min_temperature, excluded.min_temperature), COALESCE(excluded.min_temperature, min_temperature)),
			max_temperature = MAX(COALESCE(max_temperature, excluded.max_temperature), COALESCE(excluded.max_temperature, max_temperature))`,
		delta.Day, delta.OnSeconds, delta.OffSeconds, delta.Cycles, delta.Faults, delta.Gallons,
		nullable(delta.MinTemperature), nullable(delta.MaxTemperature))
	if err != nil {
		return fmt.Errorf("add daily stats for %s: %w", delta.Day, err)
	}
	return nil
}

func AddDailyStats(db *sql.DB, deltas ...DailyStats) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		if err := AddDailyStatsWithTx(tx, d); err != nil {
			RollbackTransaction(tx)
			return err
		}
	}
	return CommitTransaction(tx)
}

// PruneEvents deletes events older than cutoff and returns how many went.
func PruneEvents(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM events WHERE at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

func nullable(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
