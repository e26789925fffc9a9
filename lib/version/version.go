// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the relay binary.
//
// Values are injected at build time, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/reportbot/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When GitCommit is not injected, the VCS revision recorded by the Go
// toolchain is used instead.
package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// commit returns the injected commit, or the toolchain's vcs.revision
// (shortened) and vcs.modified when nothing was injected.
func commit() (revision string, dirty bool) {
	if GitCommit != "unknown" {
		return GitCommit, GitDirty == "true"
	}
	info, ok := readBuildInfo()
	if !ok {
		return GitCommit, false
	}
	revision = GitCommit
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}

// Info returns the one-line string printed by --version.
func Info() string {
	revision, dirty := commit()
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s, %s)", Version, revision, suffix, BuildTime, runtime.Version())
}

// Print writes the --version line for binary to w.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n", binary, Info())
}

// UserAgent returns the HTTP User-Agent the Matrix client sends.
func UserAgent() string {
	return "bureau-report-relay/" + Version
}
