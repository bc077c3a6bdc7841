// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the custody engine configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the CUSTODY_CONFIG environment variable (via
// [Load]). There is no discovery and no per-field environment
// override. Files ending in .json or .jsonc are parsed as JSON with
// comments; anything else is YAML.
//
// Every field has a default (see [Default]), so an empty file is a
// valid configuration. [Config.Validate] rejects negative durations,
// page sizes below one, and unknown capture compressions.
//
// This package depends on no other custody packages.
package config
