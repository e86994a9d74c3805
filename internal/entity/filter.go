// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package entity

import (
	"fmt"
	"strings"
)

// Op is a filter node kind.
type Op string

const (
	OpAll       Op = "all"
	OpNone      Op = "none"
	OpEq        Op = "eq"
	OpElemMatch Op = "elem_match"
	OpAnd       Op = "and"
	OpOr        Op = "or"
)

// Filter is a structured query pushed down to the entity store.
// The zero value matches everything.
//
// Eq matches when the value at Path equals Value. ElemMatch matches when Path
// holds an array with at least one object whose Key equals Value. Empty values
// never match, so a missing principal attribute cannot widen visibility.
type Filter struct {
	Op       Op       `json:"op"`
	Path     string   `json:"path,omitempty"`
	Key      string   `json:"key,omitempty"`
	Value    string   `json:"value,omitempty"`
	Children []Filter `json:"children,omitempty"`
}

// All matches every record.
func All() Filter { return Filter{Op: OpAll} }

// None matches no record.
func None() Filter { return Filter{Op: OpNone} }

// Eq matches records where path equals value.
func Eq(path, value string) Filter {
	return Filter{Op: OpEq, Path: path, Value: value}
}

// ElemMatch matches records where the array at path has an element with key == value.
func ElemMatch(path, key, value string) Filter {
	return Filter{Op: OpElemMatch, Path: path, Key: key, Value: value}
}

// And is the conjunction of filters. Trivial members are folded.
func And(filters ...Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		switch f.op() {
		case OpAll:
			continue
		case OpNone:
			return None()
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return All()
	case 1:
		return kept[0]
	}
	return Filter{Op: OpAnd, Children: kept}
}

// Or is the disjunction of filters. Trivial members are folded.
func Or(filters ...Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		switch f.op() {
		case OpNone:
			continue
		case OpAll:
			return All()
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return None()
	case 1:
		return kept[0]
	}
	return Filter{Op: OpOr, Children: kept}
}

func (f Filter) op() Op {
	if f.Op == "" {
		return OpAll
	}
	return f.Op
}

// IsAll reports whether f matches everything.
func (f Filter) IsAll() bool { return f.op() == OpAll }

// IsNone reports whether f matches nothing.
func (f Filter) IsNone() bool { return f.op() == OpNone }

// Match evaluates f against r. This is the reference semantics every store
// implementation has to reproduce.
func (f Filter) Match(r Record) bool {
	switch f.op() {
	case OpAll:
		return true
	case OpNone:
		return false
	case OpEq:
		if f.Value == "" {
			return false
		}
		return r.String(f.Path) == f.Value
	case OpElemMatch:
		if f.Value == "" {
			return false
		}
		v, ok := r.Lookup(f.Path)
		if !ok {
			return false
		}
		items, ok := asSlice(v)
		if !ok {
			return false
		}
		for _, item := range items {
			m, ok := asMap(item)
			if !ok {
				continue
			}
			if ev, ok := m[f.Key]; ok && ev != nil && stringify(ev) == f.Value {
				return true
			}
		}
		return false
	case OpAnd:
		for _, c := range f.Children {
			if !c.Match(r) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if c.Match(r) {
				return true
			}
		}
		return false
	default:
		// Unknown operators never match.
		return false
	}
}

func (f Filter) String() string {
	switch f.op() {
	case OpAll:
		return "TRUE"
	case OpNone:
		return "FALSE"
	case OpEq:
		return fmt.Sprintf("%s = %q", f.Path, f.Value)
	case OpElemMatch:
		return fmt.Sprintf("%s[].%s = %q", f.Path, f.Key, f.Value)
	case OpAnd, OpOr:
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = c.String()
		}
		sep := " AND "
		if f.Op == OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")"
	default:
		return string(f.Op)
	}
}
