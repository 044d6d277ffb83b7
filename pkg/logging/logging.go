// Package logging configures the daemon's apex/log output.
package logging

import (
	"os"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Setup points the default logger at the given file, or stderr when path is
// empty, at the given level.
func Setup(path, level string) error {
	parsedLevel, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "unknown log level %q", level)
	}

	writer := os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "could not open log file %s", path)
		}
		writer = f
	}

	log.SetHandler(NewHandler(writer))
	log.SetLevel(parsedLevel)

	return nil
}
