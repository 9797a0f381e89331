// Package logging configures the process-wide logrus logger and hands out
// component-scoped entries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup sets the level, format and destination of the standard logger.
// A nil out writes to stderr so stdout stays free for rendered SQL.
func Setup(level, format string, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatText:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case FormatJSON:
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	return nil
}

// For returns an entry tagged with the given component.
func For(component string) *log.Entry {
	return log.WithFields(log.Fields{
		"component": component,
	})
}
