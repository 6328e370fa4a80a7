// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the tandem server.
//
// Configuration is loaded from a single file specified by either the
// TANDEM_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no file discovery and environment
// variables do not override values: the file is the single source of
// truth.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; every other file is read as YAML. Both decode into
// the same yaml-tagged structs, so keys are identical in either form.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Path fields accept ${HOME} and
// ${VAR:-default} expansion.
//
// Key exports:
//
//   - [Config] -- master struct with Server, Liveness, RateLimit, Rooms,
//     Session, Mailbox, Bridge, Auth
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other tandem packages.
package config
