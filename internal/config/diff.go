package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchingChanged is set when any matching default changed.
	MatchingChanged bool

	// IntentsChanged is set when the list of intent patterns changed. Edits
	// inside the intent files themselves are detected by the [Watcher].
	IntentsChanged bool

	ActionsChanged bool

	// G2PChanged and ListenAddrChanged cannot be applied without a restart.
	G2PChanged        bool
	ListenAddrChanged bool
}

// RequiresRestart reports whether d contains changes that a running server
// cannot apply.
func (d ConfigDiff) RequiresRestart() bool {
	return d.G2PChanged || d.ListenAddrChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ListenAddrChanged = old.Server.ListenAddr != new.Server.ListenAddr
	d.MatchingChanged = old.Matching != new.Matching
	d.IntentsChanged = !slices.Equal(old.Intents, new.Intents) || old.BaseDir != new.BaseDir
	d.ActionsChanged = !slices.EqualFunc(old.Actions, new.Actions, actionEqual)
	d.G2PChanged = !reflect.DeepEqual(old.G2P, new.G2P)

	return d
}

func actionEqual(a, b ActionConfig) bool {
	return a.Intent == b.Intent &&
		a.Webhook == b.Webhook &&
		a.Timeout == b.Timeout &&
		reflect.DeepEqual(a.Headers, b.Headers)
}
