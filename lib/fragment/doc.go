// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fragment reassembles catalog subtrees delivered in numbered
// pieces.
//
// The backend splits the file listing of one [schema.AggregationKey]
// into Total fragments and sends them independently. A [Reassembler]
// keeps one accumulator per open key and records which indexes it has
// seen, so a fragment delivered twice is recognised and ignored rather
// than counted again. When every index in [0, Total) has arrived the
// accumulator is removed and its fragments are merged in index order,
// which makes the merged payload independent of arrival order. The
// next fragment for the same key opens a new generation.
//
// Accumulators that stop receiving fragments are removed by
// [Reassembler.Evict]; nothing else times them out.
//
// A Reassembler is not safe for concurrent use. The dashboard session
// owns one and calls it from its event loop.
package fragment
