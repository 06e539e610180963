package buildinfo

import "testing"

func TestSummary(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	tests := []struct {
		name    string
		version string
		commit  string
		date    string
		want    string
	}{
		{"defaults", "", "", "", "dev"},
		{"version only", "v1.2.0", "", "", "v1.2.0"},
		{"commit and date", "v1.2.0", "abc1234", "2026-08-01", "v1.2.0 (abc1234 2026-08-01)"},
		{"commit only", "v1.2.0", "abc1234", "", "v1.2.0 (abc1234)"},
		{"date only", "v1.2.0", "", "2026-08-01", "v1.2.0 (2026-08-01)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			Version, Commit, Date = tc.version, tc.commit, tc.date
			if got := Summary(); got != tc.want {
				t.Errorf("Summary() = %q, want %q", got, tc.want)
			}
		})
	}
}
