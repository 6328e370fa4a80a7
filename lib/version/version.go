// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build identity of tandem binaries.
// Values are injected at link time:
//
//	go build -ldflags "-X github.com/bureau-foundation/tandem/lib/version.Version=v0.3.0 \
//	    -X github.com/bureau-foundation/tandem/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns a one-line description for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s, %s/%s)", Version, GitCommit, BuildTime, runtime.GOOS, runtime.GOARCH)
}
