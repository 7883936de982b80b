package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an identity known to the service. Accounts are created by the
// external identity provider; relationship sets are derived from
// project_members, projects.owner_id and proposals.
type User struct {
	ID            string       `gorm:"type:char(36);primaryKey" json:"id"`
	Email         string       `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash  string       `gorm:"size:255" json:"-"`
	Name          string       `gorm:"size:255" json:"name"`
	Surname       string       `gorm:"size:255" json:"surname"`
	Address       string       `gorm:"size:512" json:"address,omitempty"`
	Role          string       `gorm:"size:32;not null;default:user" json:"role"`
	Verified      bool         `gorm:"not null;default:false" json:"verified"`
	Blocked       bool         `gorm:"not null;default:false" json:"blocked"`
	InstitutionID *string      `gorm:"type:char(36);index" json:"institutionId,omitempty"`
	Institution   *Institution `json:"institution,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Institution is flat reference data.
type Institution struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Country   string    `gorm:"size:64" json:"country,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate assigns a UUID when none is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// BeforeCreate assigns a UUID when none is set
func (i *Institution) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// TableName overrides the table name for Institution
func (Institution) TableName() string {
	return "institutions"
}
