// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the report
// relay.
//
// Configuration is loaded from a single file specified by either the
// REPORT_RELAY_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search.
//
// Values the file leaves out keep the defaults from [Default]. After
// loading, ${VAR} and ${VAR:-default} patterns in string fields are
// expanded from the environment, so passwords can be supplied as
//
//	matrix:
//	  password: ${REPORT_RELAY_PASSWORD}
//
// without writing them into the file. The Matrix password may instead
// come from password_file ("-" reads standard input). Both passwords
// are handed out as [secret.Buffer] values by [Config.MatrixPassword]
// and [Config.DatabasePassword], which also clear the plain string
// from the Config.
//
// [Config.Validate] reports every problem at once.
package config
