package services

import (
	"github.com/localnerve/datashare/internal/anonymize"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/types"
	"github.com/samber/lo"
)

// ColumnSpec is a validated, ordered list of declared columns and actions.
type ColumnSpec struct {
	Columns []anonymize.Column
}

// ParseColumnSpec parses the comma-delimited columnNames and columnActions
// form fields.
func ParseColumnSpec(names, actions string) (ColumnSpec, error) {
	return NewColumnSpec(types.SplitList(names), types.SplitList(actions))
}

// NewColumnSpec pairs names with actions. Both lists must have the same
// length, names must be unique, and every action must be keep, mask or remove.
func NewColumnSpec(names, actions []string) (ColumnSpec, error) {
	if len(names) == 0 {
		return ColumnSpec{}, types.NewValidationError("dataset.validation.columns", "At least one column name is required")
	}
	if len(names) != len(actions) {
		return ColumnSpec{}, types.NewValidationError("dataset.validation.columns",
			"Got %d column names but %d column actions", len(names), len(actions))
	}
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return ColumnSpec{}, types.NewValidationError("dataset.validation.columns", "Duplicate column names %v", dups)
	}

	spec := ColumnSpec{Columns: make([]anonymize.Column, len(names))}
	for i, name := range names {
		action, err := anonymize.ParseAction(actions[i])
		if err != nil {
			return ColumnSpec{}, types.NewValidationError("dataset.validation.actions",
				"Column %q: action must be keep, mask or remove, got %q", name, actions[i])
		}
		spec.Columns[i] = anonymize.Column{Name: name, Action: action}
	}
	if err := spec.validate(); err != nil {
		return ColumnSpec{}, err
	}
	return spec, nil
}

// validate requires at least one column that survives desensitization.
func (c ColumnSpec) validate() error {
	if len(c.Columns) == 0 {
		return types.NewValidationError("dataset.validation.columns", "At least one column name is required")
	}
	if lo.EveryBy(c.Columns, func(col anonymize.Column) bool { return col.Action == anonymize.ActionRemove }) {
		return types.NewValidationError("dataset.validation.actions", "At least one column must be kept or masked")
	}
	return nil
}

// Names returns the declared column names in order.
func (c ColumnSpec) Names() []string {
	return lo.Map(c.Columns, func(col anonymize.Column, _ int) string { return col.Name })
}

// Descriptors converts the column list for storage on a Dataset.
func (c ColumnSpec) Descriptors() []models.ColumnDescriptor {
	return lo.Map(c.Columns, func(col anonymize.Column, _ int) models.ColumnDescriptor {
		return models.ColumnDescriptor{Name: col.Name, Action: string(col.Action)}
	})
}
