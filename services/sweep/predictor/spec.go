// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predictor

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MinSize is the smallest table size with a non-negative index width.
const MinSize = 8

// IndexWidth derives the history index width for a table size.
//
// Description:
//
//	Returns floor(log2(size)) - 3. The size must be a power of two and at
//	least MinSize; anything else is rejected rather than producing a
//	negative or fractional width.
//
// Inputs:
//
//	size - Table size in entries
//
// Outputs:
//
//	int - The index width (8 -> 0, 2048 -> 8)
//	error - ErrInvalidSize if size is not a power of two >= 8
func IndexWidth(size int) (int, error) {
	if err := ValidateSize(size); err != nil {
		return 0, err
	}
	return bits.Len(uint(size)) - 1 - 3, nil
}

// ValidateSize checks that size is a power of two and at least MinSize.
func ValidateSize(size int) error {
	if size <= 0 || size&(size-1) != 0 {
		return fmt.Errorf("%w: %d is not a power of two", ErrInvalidSize, size)
	}
	if size < MinSize {
		return fmt.Errorf("%w: %d is below minimum %d", ErrInvalidSize, size, MinSize)
	}
	return nil
}

// =============================================================================
// SPEC
// =============================================================================

// Spec is one concrete predictor configuration.
//
// Size and Width are zero for size-less families. Build with NewSpec so
// the size/width invariants hold; the zero value is not a valid Spec.
type Spec struct {
	Family Family `json:"family" yaml:"family"`
	Size   int    `json:"size,omitempty" yaml:"size,omitempty"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`
}

// NewSpec validates and builds a predictor spec.
//
// Description:
//
//	Size-less families (nottaken, taken) must be given size 0. Table-backed
//	families need a valid size; the index width is derived from it.
//
// Inputs:
//
//	family - The predictor family
//	size - Table size in entries, or 0 for size-less families
//
// Outputs:
//
//	Spec - The validated spec
//	error - ErrUnsupportedFamily or ErrInvalidSize
func NewSpec(family Family, size int) (Spec, error) {
	if !family.Valid() {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedFamily, string(family))
	}
	if !family.Sized() {
		if size != 0 {
			return Spec{}, fmt.Errorf("%w: family %s takes no size, got %d", ErrInvalidSize, family, size)
		}
		return Spec{Family: family}, nil
	}
	width, err := IndexWidth(size)
	if err != nil {
		return Spec{}, fmt.Errorf("family %s: %w", family, err)
	}
	return Spec{Family: family, Size: size, Width: width}, nil
}

// HasSize reports whether the spec carries a table size.
func (s Spec) HasSize() bool {
	return s.Family.Sized()
}

// Flags renders the simulator arguments selecting this predictor.
func (s Spec) Flags() []string {
	flags := []string{"-bpred", s.Family.selector()}
	if !s.Family.Sized() {
		return flags
	}

	size := strconv.Itoa(s.Size)
	twoLevel := []string{"-bpred:2lev", "1", size, strconv.Itoa(s.Width), strconv.Itoa(s.Family.XOR())}

	switch s.Family {
	case FamilyBimod:
		flags = append(flags, "-bpred:bimod", size)
	case FamilyGShare, FamilyGSelect:
		flags = append(flags, twoLevel...)
	case FamilyCombBimodGShare, FamilyCombBimodGSelect:
		flags = append(flags, "-bpred:bimod", size)
		flags = append(flags, twoLevel...)
		flags = append(flags, "-bpred:comb", size)
	}
	return flags
}

// Label renders the configuration as a file-name fragment:
// <family>[_<size>[_<width>]]. The width is only included for
// history-indexed families.
func (s Spec) Label() string {
	parts := []string{string(s.Family)}
	if s.Family.Sized() {
		parts = append(parts, strconv.Itoa(s.Size))
		if s.Family.UsesHistory() {
			parts = append(parts, strconv.Itoa(s.Width))
		}
	}
	return strings.Join(parts, "_")
}

// String implements fmt.Stringer.
func (s Spec) String() string {
	return s.Label()
}
