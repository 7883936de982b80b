package models

import (
	"time"

	"gorm.io/gorm"
)

// Dataset is the metadata of one desensitized artifact. Columns holds the
// declared descriptor of every source column; the artifact itself carries only
// the columns that survived.
type Dataset struct {
	ID           string     `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectID    string     `gorm:"type:char(36);not null;index:idx_dataset_slot" json:"projectId"`
	Name         string     `gorm:"size:255;not null;index:idx_dataset_slot" json:"name"`
	Description  string     `gorm:"type:text" json:"description"`
	Format       string     `gorm:"size:8;not null" json:"format"`
	OriginalName string     `gorm:"size:255" json:"originalName"`
	Columns      JSON       `json:"columns"`
	ArtifactKey  *string    `gorm:"size:512" json:"-"`
	RowCount     int        `gorm:"not null;default:0" json:"rowCount"`
	RemovedAt    *time.Time `gorm:"index" json:"removedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Active reports whether the dataset is still attached to its project.
func (d *Dataset) Active() bool {
	return d.RemovedAt == nil
}

// BeforeCreate assigns a UUID when none is set
func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	assignID(&d.ID)
	return nil
}

// TableName overrides the table name for Dataset
func (Dataset) TableName() string {
	return "datasets"
}
