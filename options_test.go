package multimap

import (
	"testing"

	"github.com/multimap-io/multimap-go/internal/log"
)

func TestQuietDefaultsToAFreshLoggerNotTheSharedDefault(t *testing.T) {
	shared := log.GetDefaultLogger()
	before := shared.GetLevel()
	defer shared.SetLevel(before)

	opts := Options{Quiet: true}.WithDefaults()

	if opts.Logger == log.Logger(shared) {
		t.Fatal("quiet Options with no explicit Logger should not reuse the shared default logger")
	}
	if opts.Logger.GetLevel() != log.LevelError {
		t.Errorf("quiet logger level = %v, want LevelError", opts.Logger.GetLevel())
	}
	if shared.GetLevel() != before {
		t.Error("Quiet should not have mutated the shared default logger's level")
	}
}

func TestQuietLowersAnExplicitLogger(t *testing.T) {
	custom := log.NewStandardLogger(log.WithLevel(log.LevelDebug))
	opts := Options{Quiet: true, Logger: custom}.WithDefaults()

	if opts.Logger != custom {
		t.Fatal("an explicit Logger should be kept, not replaced")
	}
	if custom.GetLevel() != log.LevelError {
		t.Errorf("explicit logger level = %v, want LevelError", custom.GetLevel())
	}
}
