// Package logging provides functions for logging startup information in regauth.
// It reports which credential sources the resolver chain was assembled from.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// WriteStartupMessage logs the version and the credential source chain.
//
// Sources are listed in precedence order. The summary is written at debug level so that
// encoded output on stdout stays the only thing a default run prints.
//
// Parameters:
//   - log: The logrus.Entry startup information is written to, the standard logger when nil.
//   - version: The version string of regauth.
//   - sources: The names of the configured credential sources, highest precedence first.
func WriteStartupMessage(log *logrus.Entry, version string, sources []string) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	log.WithField("version", version).Debug("Starting regauth")

	LogSourceInfo(log, sources)

	// Trace output includes credential values.
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		log.Warn(
			"Trace level enabled: log will include sensitive information as credentials and tokens",
		)
	}
}

// LogSourceInfo logs the credential source chain or notes that access is anonymous.
//
// Parameters:
//   - log: The logrus.Entry used to write the source information.
//   - sources: The names of the configured credential sources.
func LogSourceInfo(log *logrus.Entry, sources []string) {
	if len(sources) > 0 {
		log.Debug("Using credential sources: " + strings.Join(sources, " > "))
	} else {
		log.Info("No credential sources configured, registry access will be anonymous")
	}
}
