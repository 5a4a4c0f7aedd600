// Package version carries build metadata stamped in with -ldflags.
package version

var (
	Version = "v0.1.0"
	Commit  = "unknown"
)

// String is the version line printed by `readr --version`.
func String() string {
	if Commit == "" || Commit == "unknown" {
		return Version
	}
	return Version + " (" + Commit + ")"
}

// UserAgent is sent on outbound provider requests.
func UserAgent() string {
	return "readr/" + Version
}
