// Package testutil provides shared test helpers.
package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

// NewLogger returns a logger that writes to t.Log(). Output only appears on
// test failure or with -v.
func NewLogger(t testing.TB) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
