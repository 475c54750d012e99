package db

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

func ListEventsCLI(out io.Writer, dbPath string, limit int) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	events, err := GetRecentEvents(dbConn, limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		state := "OFF"
		if ev.Active {
			state = "ON"
		}
		line := fmt.Sprintf("%s  %-13s %-3s temp=%.2fC flow=%.2fgpm cycles=%d",
			ev.Time.Local().Format(time.DateTime), ev.Kind, state, ev.Temperature, ev.FlowRate, ev.CycleCount)
		if ev.Fault != "" {
			line += " fault=" + ev.Fault
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// DailyStatsCLI prints the last days of stats, today included, as JSON.
func DailyStatsCLI(out io.Writer, dbPath string, days int, now time.Time) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)
	stats, err := GetDailyStats(dbConn, from, now.Format(time.DateOnly))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
