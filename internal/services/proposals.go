// proposals.go
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

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/localnerve/datashare/internal/metrics"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/notify"
	"github.com/localnerve/datashare/internal/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// ProposalService owns the proposal state machine.
type ProposalService struct {
	db       *gorm.DB
	granter  Granter
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewProposalService wires the lifecycle manager. A nil metrics uses
// unregistered collectors.
func NewProposalService(db *gorm.DB, granter Granter, notifier notify.Notifier, m *metrics.Metrics, log *zap.Logger) *ProposalService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ProposalService{db: db, granter: granter, notifier: notifier, metrics: m, log: log}
}

// ProposalInput carries the applicator's mutable fields. Applicants are
// contact emails.
type ProposalInput struct {
	ProjectID                 string
	ProposalText              string
	PotentialResearchBenefits string
	Applicants                []string
}

// ProposalResult is a stored proposal plus the emails that matched no user.
type ProposalResult struct {
	Proposal   *models.Proposal `json:"proposal"`
	Unresolved []string         `json:"unresolved"`
}

const proposalConflictType = "proposal.state.conflict"

func proposalConflict(id string) error {
	return types.NewConflictError(proposalConflictType, "Proposal %s has already been evaluated", id)
}

// setApplicants replaces the proposal's applicant set.
func setApplicants(tx *gorm.DB, proposalID string, userIDs []string) error {
	if err := tx.Exec("DELETE FROM proposal_applicants WHERE proposal_id = ?", proposalID).Error; err != nil {
		return err
	}
	for _, id := range userIDs {
		if err := tx.Exec("INSERT INTO proposal_applicants (proposal_id, user_id) VALUES (?, ?)",
			proposalID, id).Error; err != nil {
			return err
		}
	}
	return nil
}

// loadProposal fetches a proposal with its applicants, optionally locking the row.
func loadProposal(tx *gorm.DB, proposalID string, lock bool) (*models.Proposal, error) {
	if proposalID == "" {
		return nil, types.NewValidationError("proposal.validation.id", "Proposal id is required")
	}
	q := silent(tx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Proposal
	if err := q.Where("id = ?", proposalID).First(&p).Error; err != nil {
		if isNotFound(err) {
			return nil, types.NewNotFoundError("proposal.notfound", "Proposal %s not found", proposalID)
		}
		return nil, storageError("proposal.lookup", err)
	}
	if err := tx.Model(&p).Association("Applicants").Find(&p.Applicants); err != nil {
		return nil, storageError("proposal.applicants", err)
	}
	p.SyncApplicantIDs()
	return &p, nil
}

func validateProposalText(in ProposalInput) error {
	if strings.TrimSpace(in.ProposalText) == "" {
		return types.NewValidationError("proposal.validation.text", "Proposal text is required")
	}
	return nil
}

// Create stores a new proposal in status none.
func (s *ProposalService) Create(ctx context.Context, applicatorID string, in ProposalInput) (*ProposalResult, error) {
	if in.ProjectID == "" {
		return nil, types.NewValidationError("proposal.validation.project", "Project id is required")
	}
	if err := validateProposalText(in); err != nil {
		return nil, err
	}

	var (
		result  = &ProposalResult{}
		ownerID string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireUser(tx, applicatorID); err != nil {
			return err
		}
		project, err := loadProject(tx, in.ProjectID)
		if err != nil {
			return err
		}
		ownerID = project.OwnerID

		applicants, err := resolveEmails(tx, in.Applicants)
		if err != nil {
			return err
		}
		result.Unresolved = applicants.Unresolved

		p := &models.Proposal{
			ProjectID:                 project.ID,
			ApplicatorID:              applicatorID,
			ProposalText:              in.ProposalText,
			PotentialResearchBenefits: in.PotentialResearchBenefits,
			Status:                    models.StatusNone,
		}
		if err := tx.Create(p).Error; err != nil {
			return storageError("proposal.create", err)
		}
		if err := setApplicants(tx, p.ID, applicants.UserIDs); err != nil {
			return storageError("proposal.applicants", err)
		}
		p.ApplicantUserIDs = applicants.UserIDs
		result.Proposal = p
		return nil
	})
	if err != nil {
		s.metrics.ProposalTransitions.WithLabelValues("create", outcomeOf(err)).Inc()
		return nil, err
	}

	s.metrics.ProposalTransitions.WithLabelValues("create", metrics.OutcomeOK).Inc()
	s.log.Info("proposal created",
		zap.String("proposal_id", result.Proposal.ID),
		zap.String("project_id", result.Proposal.ProjectID),
		zap.String("applicator_id", applicatorID),
	)
	notify.Dispatch(ctx, s.notifier, s.log, notify.Event{
		Type:       notify.ProposalCreated,
		ProposalID: result.Proposal.ID,
		ProjectID:  result.Proposal.ProjectID,
		Recipients: []string{ownerID},
		Status:     string(result.Proposal.Status),
	})
	return result, nil
}

// Amend overwrites the mutable fields of a non-terminal proposal. Only the
// applicator may amend, and the project reference cannot change.
func (s *ProposalService) Amend(ctx context.Context, callerID, proposalID string, in ProposalInput) (*ProposalResult, error) {
	if err := validateProposalText(in); err != nil {
		return nil, err
	}

	var (
		result  = &ProposalResult{}
		ownerID string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadProposal(tx, proposalID, true)
		if err != nil {
			return err
		}
		if p.ApplicatorID != callerID {
			return types.NewAuthorizationError("proposal.authorization.amend", "Only the applicator may amend proposal %s", proposalID)
		}
		if in.ProjectID != "" && in.ProjectID != p.ProjectID {
			return types.NewValidationError("proposal.validation.project", "The project of a proposal cannot be changed")
		}
		if p.Status.Normalize().Terminal() {
			return proposalConflict(proposalID)
		}

		applicants, err := resolveEmails(tx, in.Applicants)
		if err != nil {
			return err
		}
		result.Unresolved = applicants.Unresolved

		update := tx.Model(&models.Proposal{}).
			Where("id = ? AND status = ?", proposalID, models.StatusNone).
			Updates(map[string]any{
				"proposal_text":               in.ProposalText,
				"potential_research_benefits": in.PotentialResearchBenefits,
				"updated_at":                  time.Now().UTC(),
			})
		if update.Error != nil {
			return storageError("proposal.amend", update.Error)
		}
		if update.RowsAffected == 0 {
			return proposalConflict(proposalID)
		}
		if err := setApplicants(tx, proposalID, applicants.UserIDs); err != nil {
			return storageError("proposal.applicants", err)
		}

		project, err := loadProject(tx, p.ProjectID)
		if err != nil {
			return err
		}
		ownerID = project.OwnerID

		result.Proposal, err = loadProposal(tx, proposalID, false)
		return err
	})
	if err != nil {
		s.metrics.ProposalTransitions.WithLabelValues("amend", outcomeOf(err)).Inc()
		return nil, err
	}

	s.metrics.ProposalTransitions.WithLabelValues("amend", metrics.OutcomeOK).Inc()
	notify.Dispatch(ctx, s.notifier, s.log, notify.Event{
		Type:       notify.ProposalAmended,
		ProposalID: proposalID,
		ProjectID:  result.Proposal.ProjectID,
		Recipients: []string{ownerID},
		Status:     string(result.Proposal.Status),
	})
	return result, nil
}

// Evaluate moves a proposal to a terminal status. Only the project owner may
// evaluate, and a proposal is evaluated at most once. On accept the grant is
// written in the same transaction as the status, so a failed grant leaves
// the proposal unevaluated.
func (s *ProposalService) Evaluate(ctx context.Context, callerID, proposalID string, verdict models.Verdict, review string) (*models.Proposal, error) {
	var (
		evaluated *models.Proposal
		granted   int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadProposal(tx, proposalID, true)
		if err != nil {
			return err
		}
		project, err := loadProject(tx, p.ProjectID)
		if err != nil {
			return err
		}
		if project.OwnerID != callerID {
			return types.NewAuthorizationError("proposal.authorization.evaluate", "Only the project owner may evaluate proposal %s", proposalID)
		}

		next, err := p.Status.Apply(verdict)
		switch {
		case errors.Is(err, models.ErrTerminalStatus):
			return proposalConflict(proposalID)
		case errors.Is(err, models.ErrInvalidVerdict):
			return types.NewValidationError("proposal.validation.verdict", "Verdict must be accept or reject")
		case err != nil:
			return err
		}

		if next == models.StatusAccepted {
			recipients := append([]string{p.ApplicatorID}, p.ApplicantUserIDs...)
			if granted, err = s.granter.Grant(ctx, tx, project.ID, p.ID, recipients); err != nil {
				return storageError("proposal.grant", err)
			}
		}

		now := time.Now().UTC()
		update := tx.Clauses(hints.CommentBefore("update", "proposal.evaluate")).
			Model(&models.Proposal{}).
			Where("id = ? AND status = ?", proposalID, models.StatusNone).
			Updates(map[string]any{
				"status":       next,
				"review_text":  review,
				"reviewer_id":  callerID,
				"evaluated_at": now,
				"updated_at":   now,
			})
		if update.Error != nil {
			return storageError("proposal.evaluate", update.Error)
		}
		if update.RowsAffected == 0 {
			return proposalConflict(proposalID)
		}

		p.Status = next
		p.ReviewText = review
		p.ReviewerID = lo.ToPtr(callerID)
		p.EvaluatedAt = &now
		p.UpdatedAt = now
		evaluated = p
		return nil
	})
	if err != nil {
		s.metrics.ProposalTransitions.WithLabelValues("evaluate", outcomeOf(err)).Inc()
		return nil, err
	}

	s.metrics.ProposalTransitions.WithLabelValues("evaluate", metrics.OutcomeOK).Inc()
	s.metrics.AccessGrants.Add(float64(granted))
	s.log.Info("proposal evaluated",
		zap.String("proposal_id", proposalID),
		zap.String("status", string(evaluated.Status)),
		zap.Int64("grants", granted),
	)
	notify.Dispatch(ctx, s.notifier, s.log, notify.Event{
		Type:       notify.ProposalEvaluated,
		ProposalID: proposalID,
		ProjectID:  evaluated.ProjectID,
		Recipients: lo.Uniq(append([]string{evaluated.ApplicatorID}, evaluated.ApplicantUserIDs...)),
		Status:     string(evaluated.Status),
	})
	return evaluated, nil
}

// Get returns a proposal to its applicator, a named applicant or the project
// owner.
func (s *ProposalService) Get(ctx context.Context, callerID, proposalID string) (*models.Proposal, error) {
	db := s.db.WithContext(ctx)
	p, err := loadProposal(db, proposalID, false)
	if err != nil {
		return nil, err
	}
	if p.ApplicatorID == callerID || lo.Contains(p.ApplicantUserIDs, callerID) {
		return p, nil
	}
	project, err := loadProject(db, p.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != callerID {
		return nil, types.NewAuthorizationError("proposal.authorization.read", "Proposal %s is not visible to this user", proposalID)
	}
	return p, nil
}

// ListForUser returns the proposals userID authored or is named in.
func (s *ProposalService) ListForUser(ctx context.Context, userID string) ([]models.Proposal, error) {
	db := s.db.WithContext(ctx)
	named := db.Table("proposal_applicants").Select("proposal_id").Where("user_id = ?", userID)

	proposals := []models.Proposal{}
	if err := db.Preload("Applicants").
		Where("applicator_id = ?", userID).
		Or("id IN (?)", named).
		Order("created_at").
		Find(&proposals).Error; err != nil {
		return nil, storageError("proposal.list", err)
	}
	for i := range proposals {
		proposals[i].SyncApplicantIDs()
	}
	return proposals, nil
}

// ListForProject returns a project's proposals to its owner.
func (s *ProposalService) ListForProject(ctx context.Context, callerID, projectID string) ([]models.Proposal, error) {
	db := s.db.WithContext(ctx)
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != callerID {
		return nil, types.NewAuthorizationError("proposal.authorization.list", "Only the project owner may list its proposals")
	}

	proposals := []models.Proposal{}
	if err := db.Preload("Applicants").
		Where("project_id = ?", projectID).
		Order("created_at").
		Find(&proposals).Error; err != nil {
		return nil, storageError("proposal.list", err)
	}
	for i := range proposals {
		proposals[i].SyncApplicantIDs()
	}
	return proposals, nil
}

func outcomeOf(err error) string {
	switch types.KindOf(err) {
	case types.KindConflict:
		return metrics.OutcomeConflict
	case types.KindValidation, types.KindNotFound, types.KindAuthorization:
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
