// Package logger provides the service's configured zerolog logger.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// New returns a JSON logger on stdout tagged with serviceName.
// Call sites use .Stack() on error events to include stacks.
func New(serviceName string) zerolog.Logger {
	return NewWriter(os.Stdout, serviceName)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, serviceName string) zerolog.Logger {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(w).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// WithLevel parses level ("debug", "info", ...) and applies it. An empty
// level keeps the logger unchanged.
func WithLevel(l zerolog.Logger, level string) (zerolog.Logger, error) {
	if level == "" {
		return l, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return l, err
	}
	return l.Level(lvl), nil
}
