package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/pump-controller/internal/model"
)

// DailyStats is the pump activity recorded for one calendar day.
type DailyStats struct {
	Day            string   `json:"day"`
	OnSeconds      int64    `json:"on_seconds"`
	OffSeconds     int64    `json:"off_seconds"`
	Cycles         int64    `json:"cycles"`
	Faults         int64    `json:"faults"`
	Gallons        float64  `json:"gallons"`
	MinTemperature *float64 `json:"min_temperature_c,omitempty"`
	MaxTemperature *float64 `json:"max_temperature_c,omitempty"`
}

// GetRecentEvents returns up to limit events, newest first.
func GetRecentEvents(db *sql.DB, limit int) ([]model.EventRecord, error) {
	rows, err := db.Query(`SELECT id, at, kind, active, fault, temperature, flow_rate, cycle_count FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []model.EventRecord{}
	for rows.Next() {
		var ev model.EventRecord
		var at string
		err = rows.Scan(&ev.ID, &at, &ev.Kind, &ev.Active, &ev.Fault, &ev.Temperature, &ev.FlowRate, &ev.CycleCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Time, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event time %q: %w", at, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetDailyStats returns the days in [from, to], oldest first. Days are
// formatted YYYY-MM-DD.
func GetDailyStats(db *sql.DB, from, to string) ([]DailyStats, error) {
	rows, err := db.Query(`SELECT day, on_seconds, off_seconds, cycles, faults, gallons, min_temperature, max_temperature FROM daily_stats WHERE day >= ? AND day <= ? ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStats
	for rows.Next() {
		var s DailyStats
		var minTemp, maxTemp sql.NullFloat64
		err = rows.Scan(&s.Day, &s.OnSeconds, &s.OffSeconds, &s.Cycles, &s.Faults, &s.Gallons, &minTemp, &maxTemp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		if minTemp.Valid {
			s.MinTemperature = &minTemp.Float64
		}
		if maxTemp.Valid {
			s.MaxTemperature = &maxTemp.Float64
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
