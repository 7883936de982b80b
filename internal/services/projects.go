package services

import (
	"context"
	"strings"

	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectService registers projects and derives relationship views from
// project_members.
type ProjectService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewProjectService(db *gorm.DB, log *zap.Logger) *ProjectService {
	return &ProjectService{db: db, log: log}
}

// CreateProjectInput is the owner's registration request.
type CreateProjectInput struct {
	Name          string
	Description   string
	Abstract      string
	IsPublic      bool
	Tags          []string
	Collaborators []string // emails
}

// CreateProjectResult reports names that could not be resolved.
type CreateProjectResult struct {
	Project        *models.Project `json:"project"`
	UnresolvedTags []string        `json:"unresolvedTags"`
	Unresolved     []string        `json:"unresolved"`
}

// ProjectDetail is a project with its derived relationship sets.
type ProjectDetail struct {
	models.Project
	Datasets        []models.Dataset `json:"datasets"`
	UserIDs         []string         `json:"userIds"`
	CollaboratorIDs []string         `json:"collaboratorIds"`
}

// Relation is how a user relates to a project.
type Relation struct {
	Owner        bool
	Collaborator bool
	Shared       bool
}

// Any reports whether the user may read the project's data.
func (r Relation) Any() bool {
	return r.Owner || r.Collaborator || r.Shared
}

// CanWrite reports whether the user may manage the project's datasets.
func (r Relation) CanWrite() bool {
	return r.Owner || r.Collaborator
}

// Create stores the project, its tag links and collaborator edges in one
// transaction.
func (s *ProjectService) Create(ctx context.Context, ownerID string, in CreateProjectInput) (*CreateProjectResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, types.NewValidationError("project.validation.name", "Project name is required")
	}

	result := &CreateProjectResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireUser(tx, ownerID); err != nil {
			return err
		}

		tagNames := lo.Uniq(lo.FilterMap(in.Tags, func(t string, _ int) (string, bool) {
			t = strings.TrimSpace(t)
			return t, t != ""
		}))
		var tags []models.Tag
		if len(tagNames) > 0 {
			if err := tx.Where("name IN ?", tagNames).Find(&tags).Error; err != nil {
				return storageError("project.tags", err)
			}
		}
		found := lo.Map(tags, func(t models.Tag, _ int) string { return t.Name })
		result.UnresolvedTags, _ = lo.Difference(tagNames, found)

		collaborators, err := resolveEmails(tx, in.Collaborators)
		if err != nil {
			return err
		}
		result.Unresolved = collaborators.Unresolved

		project := &models.Project{
			OwnerID:     ownerID,
			Name:        in.Name,
			Description: in.Description,
			Abstract:    in.Abstract,
			IsPublic:    in.IsPublic,
			Tags:        tags,
		}
		if err := tx.Create(project).Error; err != nil {
			return storageError("project.create", err)
		}

		edges := lo.FilterMap(collaborators.UserIDs, func(id string, _ int) (models.ProjectMember, bool) {
			return models.ProjectMember{UserID: id, ProjectID: project.ID, Role: models.RoleCollaborator}, id != ownerID
		})
		if len(edges) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edges).Error; err != nil {
				return storageError("project.collaborators", err)
			}
		}

		result.Project = project
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("project created",
		zap.String("project_id", result.Project.ID),
		zap.String("owner_id", ownerID),
		zap.Int("unresolved", len(result.Unresolved)),
	)
	return result, nil
}

// loadProject fetches a project or returns a NotFound error.
func loadProject(tx *gorm.DB, projectID string) (*models.Project, error) {
	if projectID == "" {
		return nil, types.NewValidationError("project.validation.id", "Project id is required")
	}
	var project models.Project
	if err := silent(tx).Where("id = ?", projectID).First(&project).Error; err != nil {
		if isNotFound(err) {
			return nil, types.NewNotFoundError("project.notfound", "Project %s not found", projectID)
		}
		return nil, storageError("project.lookup", err)
	}
	return &project, nil
}

// relationOf derives userID's relation to project from the owner column and
// the edge table.
func relationOf(tx *gorm.DB, project *models.Project, userID string) (Relation, error) {
	rel := Relation{Owner: userID != "" && project.OwnerID == userID}
	if userID == "" {
		return rel, nil
	}
	var roles []models.MemberRole
	if err := tx.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", project.ID, userID).
		Pluck("role", &roles).Error; err != nil {
		return rel, storageError("project.relation", err)
	}
	for _, r := range roles {
		switch r {
		case models.RoleCollaborator:
			rel.Collaborator = true
		case models.RoleShared:
			rel.Shared = true
		}
	}
	return rel, nil
}

// memberIDs lists the users holding role on a project.
func memberIDs(tx *gorm.DB, projectID string, role models.MemberRole) ([]string, error) {
	ids := []string{}
	if err := tx.Model(&models.ProjectMember{}).
		Where("project_id = ? AND role = ?", projectID, role).
		Order("created_at, user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, storageError("project.members", err)
	}
	return ids, nil
}

// Get returns a project's detail. Private projects are visible only to the
// owner, collaborators and granted users.
func (s *ProjectService) Get(ctx context.Context, callerID, projectID string) (*ProjectDetail, error) {
	db := s.db.WithContext(ctx)
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}

	if !project.IsPublic {
		rel, err := relationOf(db, project, callerID)
		if err != nil {
			return nil, err
		}
		if !rel.Any() {
			return nil, types.NewAuthorizationError("project.authorization.read", "Project %s is private", projectID)
		}
	}

	if err := db.Model(project).Association("Tags").Find(&project.Tags); err != nil {
		return nil, storageError("project.tags", err)
	}

	detail := &ProjectDetail{Project: *project, Datasets: []models.Dataset{}}
	if err := db.Where("project_id = ? AND removed_at IS NULL", projectID).
		Order("created_at").Find(&detail.Datasets).Error; err != nil {
		return nil, storageError("project.datasets", err)
	}
	if detail.UserIDs, err = memberIDs(db, projectID, models.RoleShared); err != nil {
		return nil, err
	}
	if detail.CollaboratorIDs, err = memberIDs(db, projectID, models.RoleCollaborator); err != nil {
		return nil, err
	}
	return detail, nil
}

// OwnedProjects lists the projects userID owns or collaborates on.
func (s *ProjectService) OwnedProjects(ctx context.Context, userID string) ([]models.Project, error) {
	db := s.db.WithContext(ctx)
	collaborated := db.Model(&models.ProjectMember{}).Select("project_id").
		Where("user_id = ? AND role = ?", userID, models.RoleCollaborator)

	projects := []models.Project{}
	if err := db.Preload("Tags").
		Where("owner_id = ?", userID).
		Or("id IN (?)", collaborated).
		Order("created_at").
		Find(&projects).Error; err != nil {
		return nil, storageError("project.owned", err)
	}
	return projects, nil
}

// SharedProjects lists the projects in userID's shared-project set.
func (s *ProjectService) SharedProjects(ctx context.Context, userID string) ([]models.Project, error) {
	db := s.db.WithContext(ctx)
	shared := db.Model(&models.ProjectMember{}).Select("project_id").
		Where("user_id = ? AND role = ?", userID, models.RoleShared)

	projects := []models.Project{}
	if err := db.Preload("Tags").
		Where("id IN (?)", shared).
		Order("created_at").
		Find(&projects).Error; err != nil {
		return nil, storageError("project.shared", err)
	}
	return projects, nil
}

// AccessList returns the project's granted-access set.
func (s *ProjectService) AccessList(ctx context.Context, projectID string) ([]string, error) {
	return memberIDs(s.db.WithContext(ctx), projectID, models.RoleShared)
}
