package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at path and stderr. An empty path logs to
// stderr only.
func Init(level zerolog.Level, path string) {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}

	if path != "" {
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		writers = append(writers, logFile)
	}

	multi := zerolog.MultiLevelWriter(writers...)

	logger := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
