// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predictor describes the branch predictor configurations a sweep
// enumerates and renders them into simulator flags.
//
// # Families
//
//	| Family             | Table | History index | Simulator selector |
//	|--------------------|-------|---------------|--------------------|
//	| nottaken           | no    | no            | -bpred nottaken    |
//	| taken              | no    | no            | -bpred taken       |
//	| bimod              | yes   | no            | -bpred bimod       |
//	| gshare             | yes   | xor           | -bpred 2lev        |
//	| gselect            | yes   | concat        | -bpred 2lev        |
//	| comb_bimod_gshare  | yes   | xor           | -bpred comb        |
//	| comb_bimod_gselect | yes   | concat        | -bpred comb        |
//
// # Index Width
//
// Table-backed families carry an index width derived from the table size:
//
//	width = floor(log2(size)) - 3
//
// Sizes must be powers of two and at least 8 so the width is never negative.
package predictor

import (
	"fmt"
	"sort"
)

// =============================================================================
// FAMILY
// =============================================================================

// Family identifies a branch prediction strategy.
type Family string

const (
	// FamilyNotTaken always predicts not-taken.
	FamilyNotTaken Family = "nottaken"

	// FamilyTaken always predicts taken.
	FamilyTaken Family = "taken"

	// FamilyBimod is a table of 2-bit saturating counters indexed by PC.
	FamilyBimod Family = "bimod"

	// FamilyGShare is a two-level predictor indexed by PC xor global history.
	FamilyGShare Family = "gshare"

	// FamilyGSelect is a two-level predictor indexed by PC concatenated with
	// global history.
	FamilyGSelect Family = "gselect"

	// FamilyCombBimodGShare hedges between bimod and gshare with a meta table.
	FamilyCombBimodGShare Family = "comb_bimod_gshare"

	// FamilyCombBimodGSelect hedges between bimod and gselect with a meta table.
	FamilyCombBimodGSelect Family = "comb_bimod_gselect"
)

// families lists every family in canonical sweep order.
var families = []Family{
	FamilyNotTaken,
	FamilyTaken,
	FamilyBimod,
	FamilyGShare,
	FamilyGSelect,
	FamilyCombBimodGShare,
	FamilyCombBimodGSelect,
}

// Families returns every supported family in canonical order.
//
// The returned slice is a copy.
func Families() []Family {
	out := make([]Family, len(families))
	copy(out, families)
	return out
}

// SizelessFamilies returns the static baselines.
func SizelessFamilies() []Family {
	return []Family{FamilyNotTaken, FamilyTaken}
}

// SizedFamilies returns the table-backed families in canonical order.
func SizedFamilies() []Family {
	return []Family{
		FamilyBimod,
		FamilyGShare,
		FamilyGSelect,
		FamilyCombBimodGShare,
		FamilyCombBimodGSelect,
	}
}

// ParseFamily converts a name into a Family.
//
// Outputs:
//
//	Family - The parsed family
//	error - ErrUnsupportedFamily if the name is unknown
func ParseFamily(name string) (Family, error) {
	for _, f := range families {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFamily, name)
}

// NamesByLength returns family names sorted longest first.
//
// Used when a family must be recovered from a string where a shorter
// name is a suffix of a longer one (bimod inside comb_bimod_gshare).
func NamesByLength() []string {
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = string(f)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})
	return names
}

// Valid reports whether f is a supported family.
func (f Family) Valid() bool {
	_, err := ParseFamily(string(f))
	return err == nil
}

// Sized reports whether the family needs a table size.
func (f Family) Sized() bool {
	switch f {
	case FamilyNotTaken, FamilyTaken:
		return false
	default:
		return f.Valid()
	}
}

// UsesHistory reports whether the family includes a history-indexed
// two-level component and therefore needs an index width.
func (f Family) UsesHistory() bool {
	switch f {
	case FamilyGShare, FamilyGSelect, FamilyCombBimodGShare, FamilyCombBimodGSelect:
		return true
	default:
		return false
	}
}

// XOR returns the two-level sub-selector: 1 for xor-indexed variants,
// 0 for concatenated ones.
func (f Family) XOR() int {
	switch f {
	case FamilyGShare, FamilyCombBimodGShare:
		return 1
	default:
		return 0
	}
}

// selector returns the simulator -bpred value.
func (f Family) selector() string {
	switch f {
	case FamilyGShare, FamilyGSelect:
		return "2lev"
	case FamilyCombBimodGShare, FamilyCombBimodGSelect:
		return "comb"
	default:
		return string(f)
	}
}

// Order returns the canonical position of f, or -1 if unknown.
func (f Family) Order() int {
	for i, g := range families {
		if g == f {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer.
func (f Family) String() string {
	return string(f)
}
