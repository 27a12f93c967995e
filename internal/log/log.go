// Package log holds the process-wide hclog logger. Packages take named
// sub-loggers from L.
//
// The level comes from the environment: TRACE (any value) selects Trace,
// otherwise SIMKERN_LOG may name a level ("debug", "warn", ...). The
// default is Info.
package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

const levelVariable = "SIMKERN_LOG"

var L = newLogger(os.Stderr, os.Getenv)

func newLogger(w io.Writer, getenv func(string) string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "simkern",
		Output: w,
		Level:  envLevel(getenv),
	})
}

func envLevel(getenv func(string) string) hclog.Level {
	if getenv("TRACE") != "" {
		return hclog.Trace
	}
	if lvl := hclog.LevelFromString(getenv(levelVariable)); lvl != hclog.NoLevel {
		return lvl
	}
	return hclog.Info
}

// SetVerbose raises L to Debug. A more detailed level is left alone.
func SetVerbose() {
	if L.GetLevel() > hclog.Debug {
		L.SetLevel(hclog.Debug)
	}
}
