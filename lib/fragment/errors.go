// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fragment

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/custody/lib/schema"
)

// ErrDuplicate is returned when a fragment index has already been
// delivered in the key's current generation. The fragment is ignored.
var ErrDuplicate = errors.New("duplicate fragment")

// MalformedError describes a fragment that was rejected without
// touching any accumulator.
type MalformedError struct {
	Key    schema.AggregationKey
	Index  int
	Total  int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed fragment %d/%d for %s: %s", e.Index, e.Total, e.Key, e.Reason)
}
