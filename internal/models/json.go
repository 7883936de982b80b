package models

import (
	"database/sql/driver"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSON is a wrapper around gorm.io/datatypes.JSON to allow for custom data type mapping
type JSON struct {
	datatypes.JSON
}

// Value promotes the embedded JSON's Value method
func (j JSON) Value() (driver.Value, error) {
	if len(j.JSON) == 0 {
		return "null", nil
	}
	return j.JSON.Value()
}

// Scan promotes the embedded JSON's Scan method
func (j *JSON) Scan(value interface{}) error {
	return j.JSON.Scan(value)
}

// GormDBDataType ensures the correct data type is used for each database driver.
// This resolves the issue where MSSQL does not support the 'json' data type.
func (JSON) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "JSON"
	}
	return "TEXT"
}

// ColumnDescriptor is the declared name and action of one source column.
type ColumnDescriptor struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

// ColumnsJSON encodes descriptors for storage.
func ColumnsJSON(cols []ColumnDescriptor) (JSON, error) {
	if cols == nil {
		cols = []ColumnDescriptor{}
	}
	b, err := json.Marshal(cols)
	if err != nil {
		return JSON{}, err
	}
	return JSON{JSON: datatypes.JSON(b)}, nil
}

// ColumnDescriptors decodes descriptors stored with ColumnsJSON.
func (j JSON) ColumnDescriptors() ([]ColumnDescriptor, error) {
	var cols []ColumnDescriptor
	if len(j.JSON) == 0 {
		return cols, nil
	}
	if err := json.Unmarshal(j.JSON, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}
