// engine.go
//
// A research dataset access and desensitization service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of datashare.
// datashare is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// datashare is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with datashare.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package anonymize applies per-column keep/mask/remove policies to a record
// set. It has no knowledge of projects or storage and never mutates its input.
package anonymize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/localnerve/datashare/internal/tabular"
)

// Action is the desensitization policy for one column.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionMask   Action = "mask"
	ActionRemove Action = "remove"
)

var (
	ErrMissingAction   = errors.New("column has no declared action")
	ErrUnknownColumn   = errors.New("declared column not present in data")
	ErrDuplicateColumn = errors.New("column declared more than once")
	ErrInvalidAction   = errors.New("invalid column action")
)

// ParseAction accepts keep, mask or remove, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionKeep, ActionMask, ActionRemove:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Column pairs a column name with its declared action.
type Column struct {
	Name   string `json:"name"`
	Action Action `json:"action"`
}

// Options tunes an Engine.
type Options struct {
	// DefaultKeep lets undeclared columns pass through unchanged. When false an
	// undeclared column is an ErrMissingAction.
	DefaultKeep bool
}

// Engine transforms record sets. It is safe for concurrent use.
type Engine struct {
	masker *Masker
	opts   Options
}

// NewEngine returns an engine that derives pseudonyms with masker.
func NewEngine(masker *Masker, opts Options) *Engine {
	return &Engine{masker: masker, opts: opts}
}

// checkEvery is how many rows are processed between context checks.
const checkEvery = 1024

// Apply returns a new record set with actions applied, plus the descriptors of
// the surviving columns. scope namespaces pseudonyms, so the same value masks
// identically within one scope and differently across scopes.
func (e *Engine) Apply(ctx context.Context, scope string, in *tabular.Table, columns []Column) (*tabular.Table, []Column, error) {
	plan, err := e.plan(in.Columns, columns)
	if err != nil {
		return nil, nil, err
	}

	out := &tabular.Table{Format: in.Format, Rows: make([][]string, 0, len(in.Rows))}
	var kept []Column
	for _, step := range plan {
		if step.action == ActionRemove {
			continue
		}
		out.Columns = append(out.Columns, step.name)
		kept = append(kept, Column{Name: step.name, Action: step.action})
	}

	for i, row := range in.Rows {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		next := make([]string, 0, len(out.Columns))
		for idx, step := range plan {
			switch step.action {
			case ActionKeep:
				next = append(next, row[idx])
			case ActionMask:
				next = append(next, in.Format.TextCell(e.masker.Pseudonym(scope, step.name, row[idx])))
			}
		}
		out.Rows = append(out.Rows, next)
	}

	return out, kept, nil
}

type step struct {
	name   string
	action Action
}

// plan resolves one action per data column, in data column order.
func (e *Engine) plan(header []string, columns []Column) ([]step, error) {
	declared := make(map[string]Action, len(columns))
	for _, c := range columns {
		if _, dup := declared[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		declared[c.Name] = c.Action
	}

	present := make(map[string]struct{}, len(header))
	plan := make([]step, len(header))
	for i, name := range header {
		if _, dup := present[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		present[name] = struct{}{}

		action, ok := declared[name]
		if !ok {
			if !e.opts.DefaultKeep {
				return nil, fmt.Errorf("%w: %q", ErrMissingAction, name)
			}
			action = ActionKeep
		}
		plan[i] = step{name: name, action: action}
	}

	for _, c := range columns {
		if _, ok := present[c.Name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Name)
		}
	}

	return plan, nil
}
