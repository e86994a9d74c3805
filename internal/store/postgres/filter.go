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

package postgres

import (
	"fmt"
	"strings"

	"github.com/opentrusty/civicguard/internal/entity"
)

// sqlBuilder accumulates positional arguments for a compiled filter.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// compileFilter renders f as a predicate over the JSONB column data. Paths,
// keys and values are always bound as parameters. The result mirrors
// entity.Filter.Match.
func compileFilter(f entity.Filter, b *sqlBuilder) string {
	switch {
	case f.IsAll():
		return "TRUE"
	case f.IsNone():
		return "FALSE"
	}
	switch f.Op {
	case entity.OpEq:
		if f.Value == "" {
			return "FALSE"
		}
		return fmt.Sprintf("(data #>> %s::text[]) = %s", b.arg(splitPath(f.Path)), b.arg(f.Value))
	case entity.OpElemMatch:
		if f.Value == "" {
			return "FALSE"
		}
		p := b.arg(splitPath(f.Path))
		return fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(CASE WHEN jsonb_typeof(data #> %s::text[]) = 'array' THEN data #> %s::text[] ELSE '[]'::jsonb END) AS elem WHERE elem ->> %s = %s)",
			p, p, b.arg(f.Key), b.arg(f.Value),
		)
	case entity.OpAnd, entity.OpOr:
		if len(f.Children) == 0 {
			if f.Op == entity.OpAnd {
				return "TRUE"
			}
			return "FALSE"
		}
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = compileFilter(c, b)
		}
		sep := " AND "
		if f.Op == entity.OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")"
	default:
		return "FALSE"
	}
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}
