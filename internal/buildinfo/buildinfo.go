// Package buildinfo exposes the version stamped into the binary at link time.
package buildinfo

// Overridden via -ldflags "-X github.com/tgmone/folio/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary formats version, commit, and build date as a single line for the
// --version flag and startup logs.
func Summary() string {
	out := Version
	if out == "" {
		out = "dev"
	}

	extra := Commit
	if Date != "" {
		if extra != "" {
			extra += " " + Date
		} else {
			extra = Date
		}
	}
	if extra != "" {
		out += " (" + extra + ")"
	}
	return out
}
