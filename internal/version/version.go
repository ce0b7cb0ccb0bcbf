// Package version holds build metadata injected with -ldflags -X, filled in
// from the Go build info when the binary was built without them.
package version

import (
	"fmt"
	"runtime/debug"
)

// AppName is the product name shared by all demo binaries.
const AppName = "k8sdemo"

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildId    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildId    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildId:    BuildId,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" {
				out.Commit = s.Value
			}
		case "vcs.time":
			out.CommitDate = s.Value
			if out.BuildDate == "" {
				out.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty := s.Value == "true"
			out.VCSDirty = &dirty
		}
	}
	return out
}

// Dirty reports the vcs.modified state as "true", "false" or "unknown".
func (i Info) Dirty() string {
	if i.VCSDirty == nil {
		return "unknown"
	}
	return fmt.Sprint(*i.VCSDirty)
}

// String is the one-line form printed by -V.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%s)",
		i.Version, i.Commit, i.CommitDate, i.BuildId, i.BuildDate, i.GoVersion, i.Dirty())
}
