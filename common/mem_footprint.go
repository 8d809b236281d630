// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"fmt"
	"sort"
	"strings"
)

// MemoryFootprint describes the memory consumption of a data structure and
// its named sub-components.
type MemoryFootprint struct {
	value    uintptr
	children map[string]*MemoryFootprint
}

// NewMemoryFootprint creates a new MemoryFootprint covering the given amount
// of bytes owned directly by a data structure.
func NewMemoryFootprint(value uintptr) *MemoryFootprint {
	return &MemoryFootprint{
		value:    value,
		children: map[string]*MemoryFootprint{},
	}
}

// AddChild attaches the footprint of a sub-component.
func (mf *MemoryFootprint) AddChild(name string, child *MemoryFootprint) {
	mf.children[name] = child
}

// Value provides the amount of bytes owned directly, excluding children.
func (mf *MemoryFootprint) Value() uintptr {
	return mf.value
}

// Total provides the amount of bytes including all sub-components. Shared
// sub-components are only counted once.
func (mf *MemoryFootprint) Total() uintptr {
	return mf.total(map[*MemoryFootprint]bool{})
}

func (mf *MemoryFootprint) total(seen map[*MemoryFootprint]bool) uintptr {
	if seen[mf] {
		return 0
	}
	seen[mf] = true
	res := mf.value
	for _, child := range mf.children {
		res += child.total(seen)
	}
	return res
}

func (mf *MemoryFootprint) String() string {
	var sb strings.Builder
	mf.write(&sb, ".")
	return sb.String()
}

func (mf *MemoryFootprint) write(sb *strings.Builder, path string) {
	fmt.Fprintf(sb, "%s %s\n", formatBytes(mf.Total()), path)
	names := make([]string, 0, len(mf.children))
	for name := range mf.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mf.children[name].write(sb, path+"/"+name)
	}
}

func formatBytes(bytes uintptr) string {
	const unit = 1024
	const prefixes = "KMGTPE"
	div, exp := uint64(unit), 0
	for n := uint64(bytes) / unit; n >= unit && exp+1 < len(prefixes); n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), prefixes[exp])
}
