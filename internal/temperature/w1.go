package temperature

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrCRC          = errors.New("w1 CRC check failed")
	ErrPowerOnReset = errors.New("w1 sensor reported power-on reset value")
)

// DS18B20 reports exactly 85°C until its first conversion completes.
const powerOnMilliC = 85000

// ReadW1 reads a DS18B20 through the w1-therm sysfs interface and returns
// degrees Celsius.
func ReadW1(sensorPath string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(sensorPath, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("read sensor: %w", err)
	}
	return parseW1(string(data))
}

func parseW1(data string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("malformed w1 data: %q", data)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}

	_, raw, found := strings.Cut(lines[1], "t=")
	if !found {
		return 0, fmt.Errorf("temperature missing from w1 data: %q", lines[1])
	}
	milliC, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", raw, err)
	}
	if milliC == powerOnMilliC {
		return 0, ErrPowerOnReset
	}
	return float64(milliC) / 1000.0, nil
}

// ReadWithRetries calls read up to retries+1 times, sleeping wait between
// attempts, and returns the last error if none succeed.
func ReadWithRetries(read func() (float64, error), retries int, wait time.Duration) (float64, error) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && wait > 0 {
			time.Sleep(wait)
		}
		var temp float64
		if temp, err = read(); err == nil {
			return temp, nil
		}
	}
	return 0, err
}
