// Package buildinfo reports build metadata for the shardroute binary and
// the guest ABI it speaks.
//
// Release builds inject version, commit and date with -ldflags and pass
// them to Set. Dev builds fall back to the VCS settings recorded by
// runtime/debug.ReadBuildInfo.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// ABI names the guest interface: the "sharding" import module with
// poll_table, plus the do_work, configure and shard_count exports.
const ABI = "sharding/v1"

type Info struct {
	Version  string // "dev" unless tagged or injected
	Commit   string
	Date     string // RFC3339
	Modified bool
	GoVer    string
	ABI      string
}

var (
	ldflagsVersion string
	ldflagsCommit  string
	ldflagsDate    string

	once   sync.Once
	cached Info
)

// Set stores values injected with -ldflags. Call it from main before Get.
//
//	go build -ldflags "-X main.version=v0.3.0 -X main.commit=$(git rev-parse HEAD)" ./cmd/shardroute
func Set(version, commit, date string) {
	ldflagsVersion = version
	ldflagsCommit = commit
	ldflagsDate = date
}

// Get returns the resolved build info, computed once.
func Get() Info {
	once.Do(func() {
		cached = resolve()
	})
	return cached
}

// String renders the info on one line for the version command.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("shardroute %s (commit %s, built %s, %s, abi %s)", i.Version, commit, i.Date, i.GoVer, i.ABI)
}

func resolve() Info {
	info := Info{
		Version: "dev",
		Commit:  "unknown",
		Date:    "unknown",
		ABI:     ABI,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVer = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.Date = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	// ldflags win over VCS settings.
	if ldflagsVersion != "" {
		info.Version = ldflagsVersion
	}
	if ldflagsCommit != "" {
		info.Commit = ldflagsCommit
	}
	if ldflagsDate != "" {
		info.Date = ldflagsDate
	}
	return info
}
