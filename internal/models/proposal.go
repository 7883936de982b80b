package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ProposalStatus is the evaluation state of a proposal. Values match the
// "verified" field of the API.
type ProposalStatus string

const (
	// StatusNone is awaiting review. "pending" is accepted as an alias.
	StatusNone     ProposalStatus = "none"
	StatusAccepted ProposalStatus = "accept"
	StatusRejected ProposalStatus = "reject"
)

// Verdict is an owner's evaluation decision.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
)

var (
	ErrTerminalStatus = errors.New("proposal already evaluated")
	ErrInvalidVerdict = errors.New("invalid verdict")
)

// ParseVerdict accepts accept/accepted and reject/rejected.
func ParseVerdict(s string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted":
		return VerdictAccept, nil
	case "reject", "rejected":
		return VerdictReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, s)
}

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Normalize maps the "pending" alias and the empty value to StatusNone.
func (s ProposalStatus) Normalize() ProposalStatus {
	switch s {
	case "", "pending":
		return StatusNone
	}
	return s
}

// Apply returns the status reached by applying v to s.
func (s ProposalStatus) Apply(v Verdict) (ProposalStatus, error) {
	switch s.Normalize() {
	case StatusNone:
		switch v {
		case VerdictAccept:
			return StatusAccepted, nil
		case VerdictReject:
			return StatusRejected, nil
		}
		return s, fmt.Errorf("%w: %q", ErrInvalidVerdict, v)
	case StatusAccepted, StatusRejected:
		return s, ErrTerminalStatus
	}
	return s, fmt.Errorf("unknown proposal status %q", s)
}

// Proposal is a request for access to a project.
type Proposal struct {
	ID                        string         `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectID                 string         `gorm:"type:char(36);not null;index" json:"projectId"`
	Project                   *Project       `json:"-"`
	ApplicatorID              string         `gorm:"type:char(36);not null;index" json:"applicatorId"`
	ProposalText              string         `gorm:"type:text" json:"proposalText"`
	PotentialResearchBenefits string         `gorm:"type:text" json:"potentialResearchBenefits"`
	Status                    ProposalStatus `gorm:"size:8;not null;default:none;index" json:"verified"`
	ReviewText                string         `gorm:"type:text" json:"proposalReviewText"`
	ReviewerID                *string        `gorm:"type:char(36)" json:"reviewerId,omitempty"`
	EvaluatedAt               *time.Time     `json:"evaluatedAt,omitempty"`
	Applicants                []User         `gorm:"many2many:proposal_applicants;" json:"-"`
	ApplicantUserIDs          []string       `gorm:"-" json:"applicantUserIds"`
	CreatedAt                 time.Time      `json:"createdAt"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
}

// BeforeCreate assigns a UUID when none is set
func (p *Proposal) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	if p.Status == "" {
		p.Status = StatusNone
	}
	return nil
}

// SyncApplicantIDs fills ApplicantUserIDs from preloaded applicants.
func (p *Proposal) SyncApplicantIDs() {
	p.ApplicantUserIDs = make([]string, len(p.Applicants))
	for i, u := range p.Applicants {
		p.ApplicantUserIDs[i] = u.ID
	}
}

// TableName overrides the table name for Proposal
func (Proposal) TableName() string {
	return "proposals"
}
