// Package rlog supplies the engine's default structured logger.
//
// The engine never logs directly through the standard library; every
// subsystem accepts a logrus.FieldLogger so a host application can redirect,
// filter, or silence engine diagnostics the way it already does for the rest
// of its logs.
package rlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.FieldLogger with the engine's default formatting:
// text output, info level, engine-tagged.
func New() logrus.FieldLogger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l.WithField("component", "rulenet")
}

// Discard returns a logger that drops everything, for tests and embedders
// that don't want engine diagnostics on stderr.
func Discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "rulenet")
}
