package models

import (
	"time"

	"gorm.io/gorm"
)

// Project is owned by exactly one user. Granted-access and collaborator sets
// live in project_members.
type Project struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID     string    `gorm:"type:char(36);not null;index" json:"ownerId"`
	Owner       *User     `gorm:"foreignKey:OwnerID" json:"-"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Abstract    string    `gorm:"type:text" json:"abstract"`
	IsPublic    bool      `gorm:"not null;default:false" json:"isPublic"`
	Tags        []Tag     `gorm:"many2many:project_tags;" json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tag is flat reference data linked to projects.
type Tag struct {
	ID   string `gorm:"type:char(36);primaryKey" json:"id"`
	Name string `gorm:"size:128;uniqueIndex;not null" json:"name"`
}

// MemberRole is the kind of edge between a user and a project.
type MemberRole string

const (
	// RoleShared is granted by an accepted proposal.
	RoleShared MemberRole = "shared"
	// RoleCollaborator is named by the owner at project creation.
	RoleCollaborator MemberRole = "collaborator"
)

// ProjectMember is one relationship edge. Both directions of a relationship
// are read from this single row.
type ProjectMember struct {
	UserID     string     `gorm:"type:char(36);primaryKey" json:"userId"`
	ProjectID  string     `gorm:"type:char(36);primaryKey;index" json:"projectId"`
	Role       MemberRole `gorm:"size:16;primaryKey" json:"role"`
	ProposalID *string    `gorm:"type:char(36)" json:"proposalId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// BeforeCreate assigns a UUID when none is set
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// BeforeCreate assigns a UUID when none is set
func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// TableName overrides the table name for Project
func (Project) TableName() string {
	return "projects"
}

// TableName overrides the table name for Tag
func (Tag) TableName() string {
	return "tags"
}

// TableName overrides the table name for ProjectMember
func (ProjectMember) TableName() string {
	return "project_members"
}
