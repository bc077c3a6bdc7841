// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Tier is a place a copy of a file can reside.
type Tier int

const (
	// TierDevice is the originating device (a robot or logger).
	TierDevice Tier = iota + 1

	// TierLocal is the on-premises ingestion server.
	TierLocal

	// TierRemote is the optional cloud server.
	TierRemote
)

// Tiers lists every valid tier in display order.
var Tiers = []Tier{TierDevice, TierLocal, TierRemote}

var tierNames = [...]string{
	TierDevice: "device",
	TierLocal:  "local",
	TierRemote: "remote",
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= TierDevice && t <= TierRemote
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier converts a tier name to a Tier.
func ParseTier(name string) (Tier, error) {
	for _, tier := range Tiers {
		if tierNames[tier] == name {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", name)
}

// MarshalText encodes the tier as its name. The zero value is an
// error so a request never leaves the engine without a tier.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot encode invalid tier %d", int(t))
	}
	return []byte(tierNames[t]), nil
}

// UnmarshalText decodes a tier name. Unknown names are rejected, which
// makes the enclosing event malformed.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
