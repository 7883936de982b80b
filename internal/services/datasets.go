// datasets.go
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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/localnerve/datashare/internal/anonymize"
	"github.com/localnerve/datashare/internal/metrics"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/storage"
	"github.com/localnerve/datashare/internal/tabular"
	"github.com/localnerve/datashare/internal/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// DatasetOptions bounds previews and ingestion.
type DatasetOptions struct {
	PreviewRows   int
	CacheSize     int
	IngestTimeout time.Duration
}

// DatasetService ingests uploads through the column-action engine and serves
// previews of the result.
type DatasetService struct {
	db      *gorm.DB
	store   storage.Store
	engine  *anonymize.Engine
	locks   *SlotLocks
	cache   *lru.Cache[string, *Preview]
	metrics *metrics.Metrics
	log     *zap.Logger
	opts    DatasetOptions
}

// NewDatasetService wires the ingestion and preview services. A nil metrics
// uses unregistered collectors.
func NewDatasetService(db *gorm.DB, store storage.Store, engine *anonymize.Engine, m *metrics.Metrics, log *zap.Logger, opts DatasetOptions) (*DatasetService, error) {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 50
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.IngestTimeout <= 0 {
		opts.IngestTimeout = 30 * time.Second
	}
	if m == nil {
		m = metrics.New(nil)
	}
	cache, err := lru.New[string, *Preview](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &DatasetService{
		db:      db,
		store:   store,
		engine:  engine,
		locks:   NewSlotLocks(),
		cache:   cache,
		metrics: m,
		log:     log,
		opts:    opts,
	}, nil
}

// Upload is a raw file with its declared columns.
type Upload struct {
	ProjectID   string
	Name        string
	Description string
	Filename    string
	Content     []byte
	Spec        ColumnSpec
}

// Preview is a bounded sample of desensitized rows.
type Preview struct {
	DatasetID string            `json:"datasetId,omitempty"`
	Format    tabular.Format    `json:"format"`
	Columns   []string          `json:"columns"`
	Rows      []json.RawMessage `json:"rows"`
	TotalRows int               `json:"totalRows"`
}

func newPreview(datasetID string, t *tabular.Table, limit int) *Preview {
	head := t.Head(limit)
	return &Preview{
		DatasetID: datasetID,
		Format:    t.Format,
		Columns:   lo.Ternary(t.Columns == nil, []string{}, t.Columns),
		Rows:      head.RowObjects(),
		TotalRows: t.Len(),
	}
}

// head returns a copy of p limited to n rows.
func (p *Preview) head(n int) *Preview {
	out := *p
	if n >= 0 && len(out.Rows) > n {
		out.Rows = out.Rows[:n]
	}
	return &out
}

// writableProject loads a project the caller may add datasets to.
func writableProject(tx *gorm.DB, callerID, projectID string) (*models.Project, error) {
	project, err := loadProject(tx, projectID)
	if err != nil {
		return nil, err
	}
	rel, err := relationOf(tx, project, callerID)
	if err != nil {
		return nil, err
	}
	if !rel.CanWrite() {
		return nil, types.NewAuthorizationError("dataset.authorization.write",
			"Only the owner or a collaborator may manage datasets of project %s", projectID)
	}
	return project, nil
}

// desensitize parses an upload, checks its header against the declared
// columns and applies the engine. Ingestion and live preview both go through
// here, so a preview always matches what ingestion would store.
func (s *DatasetService) desensitize(ctx context.Context, projectID string, up Upload) (*tabular.Table, error) {
	format, err := tabular.FormatFromFilename(up.Filename)
	if err != nil {
		return nil, types.NewValidationError("dataset.validation.format", "Unsupported file type %q, expected .csv or .json", up.Filename)
	}
	if len(up.Content) == 0 {
		return nil, types.NewValidationError("dataset.validation.file", "Uploaded file is empty")
	}
	if err := up.Spec.validate(); err != nil {
		return nil, err
	}

	table, err := tabular.Parse(format, bytes.NewReader(up.Content))
	if err != nil {
		return nil, types.NewValidationError("dataset.validation.parse", "Could not parse %s: %v", up.Filename, err)
	}

	declared := up.Spec.Names()
	if !slices.Equal(declared, table.Columns) {
		return nil, types.NewValidationError("dataset.validation.header",
			"File columns [%s] do not match declared columns [%s]",
			strings.Join(table.Columns, ","), strings.Join(declared, ","))
	}

	out, _, err := s.engine.Apply(ctx, projectID, table, up.Spec.Columns)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, types.NewDependencyError("dataset.desensitize", err)
		}
		return nil, types.NewValidationError("dataset.validation.columns", "%v", err)
	}
	return out, nil
}

func slotKey(projectID, name string) string {
	return projectID + "/" + name
}

// nameFree fails with a Conflict when an active dataset of the project
// already uses name.
func nameFree(tx *gorm.DB, projectID, name string) error {
	var active int64
	if err := tx.Model(&models.Dataset{}).
		Where("project_id = ? AND name = ? AND removed_at IS NULL", projectID, name).
		Count(&active).Error; err != nil {
		return storageError("dataset.lookup", err)
	}
	if active > 0 {
		return types.NewConflictError("dataset.slot.conflict",
			"Project %s already has a dataset named %q", projectID, name)
	}
	return nil
}

// Ingest desensitizes an upload and stores it as a new dataset of the
// project. Either one artifact and one Dataset row are written, or neither.
func (s *DatasetService) Ingest(ctx context.Context, callerID string, up Upload) (*models.Dataset, error) {
	start := time.Now()
	dataset, err := s.ingest(ctx, callerID, up)
	if err != nil {
		s.metrics.DatasetIngests.WithLabelValues(outcomeOf(err)).Inc()
		return nil, err
	}
	s.metrics.DatasetIngests.WithLabelValues(metrics.OutcomeOK).Inc()
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	s.metrics.IngestedRows.Add(float64(dataset.RowCount))
	s.log.Info("dataset ingested",
		zap.String("dataset_id", dataset.ID),
		zap.String("project_id", dataset.ProjectID),
		zap.Int("rows", dataset.RowCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dataset, nil
}

func (s *DatasetService) ingest(ctx context.Context, callerID string, up Upload) (*models.Dataset, error) {
	up.Name = strings.TrimSpace(up.Name)
	if up.Name == "" {
		return nil, types.NewValidationError("dataset.validation.name", "Dataset name is required")
	}

	db := s.db.WithContext(ctx)
	project, err := writableProject(db, callerID, up.ProjectID)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.TryLock(slotKey(project.ID, up.Name))
	if !ok {
		return nil, types.NewConflictError("dataset.slot.conflict",
			"Dataset %q of project %s is already being uploaded", up.Name, project.ID)
	}
	defer release()

	if err := nameFree(db, project.ID, up.Name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.IngestTimeout)
	defer cancel()
	db = s.db.WithContext(ctx)

	out, err := s.desensitize(ctx, project.ID, up)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := out.Write(&buf); err != nil {
		return nil, types.NewDependencyError("dataset.serialize", err)
	}

	columns, err := models.ColumnsJSON(up.Spec.Descriptors())
	if err != nil {
		return nil, types.NewDependencyError("dataset.serialize", err)
	}

	dataset := &models.Dataset{
		ID:           uuid.NewString(),
		ProjectID:    project.ID,
		Name:         up.Name,
		Description:  up.Description,
		Format:       string(out.Format),
		OriginalName: up.Filename,
		Columns:      columns,
		RowCount:     out.Len(),
	}
	key := storage.ArtifactKey(project.ID, dataset.ID, out.Format.Extension())

	if err := s.store.Put(ctx, key, &buf); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, types.NewConflictError("dataset.slot.conflict", "Artifact %s already exists", key)
		}
		return nil, types.NewDependencyError("dataset.artifact.write", err)
	}

	dataset.ArtifactKey = lo.ToPtr(key)
	err = db.Transaction(func(tx *gorm.DB) error {
		// The project row lock orders inserts into one slot across instances.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", project.ID).First(&models.Project{}).Error; err != nil {
			return err
		}
		if err := nameFree(tx, project.ID, up.Name); err != nil {
			return err
		}
		return tx.Clauses(hints.CommentBefore("insert", "dataset.ingest")).Create(dataset).Error
	})
	if err != nil {
		if rmErr := s.store.Remove(context.WithoutCancel(ctx), key); rmErr != nil {
			s.log.Error("failed to remove orphaned artifact", zap.String("key", key), zap.Error(rmErr))
		}
		return nil, storageError("dataset.create", err)
	}
	return dataset, nil
}

// LivePreview desensitizes an upload in memory and returns its first rows.
// Nothing is persisted.
func (s *DatasetService) LivePreview(ctx context.Context, callerID string, up Upload) (*Preview, error) {
	project, err := writableProject(s.db.WithContext(ctx), callerID, up.ProjectID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.IngestTimeout)
	defer cancel()

	out, err := s.desensitize(ctx, project.ID, up)
	if err != nil {
		return nil, err
	}
	s.metrics.Previews.WithLabelValues("live").Inc()
	return newPreview("", out, s.opts.PreviewRows), nil
}

// loadDataset fetches an attached dataset or returns a NotFound error.
func loadDataset(tx *gorm.DB, datasetID string, includeRemoved bool) (*models.Dataset, error) {
	if datasetID == "" {
		return nil, types.NewValidationError("dataset.validation.id", "Dataset id is required")
	}
	var d models.Dataset
	if err := silent(tx).Where("id = ?", datasetID).First(&d).Error; err != nil {
		if isNotFound(err) {
			return nil, types.NewNotFoundError("dataset.notfound", "Dataset %s not found", datasetID)
		}
		return nil, storageError("dataset.lookup", err)
	}
	if !includeRemoved && !d.Active() {
		return nil, types.NewNotFoundError("dataset.notfound", "Dataset %s has been removed", datasetID)
	}
	return &d, nil
}

// Preview returns up to rows rows of a stored artifact. rows is clamped to the
// configured bound; zero selects the bound.
func (s *DatasetService) Preview(ctx context.Context, callerID, datasetID string, rows int) (*Preview, error) {
	db := s.db.WithContext(ctx)
	dataset, err := loadDataset(db, datasetID, false)
	if err != nil {
		return nil, err
	}
	project, err := loadProject(db, dataset.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsPublic {
		rel, err := relationOf(db, project, callerID)
		if err != nil {
			return nil, err
		}
		if !rel.Any() {
			return nil, types.NewAuthorizationError("dataset.authorization.read", "Dataset %s is not visible to this user", datasetID)
		}
	}

	if rows <= 0 || rows > s.opts.PreviewRows {
		rows = s.opts.PreviewRows
	}
	s.metrics.Previews.WithLabelValues("stored").Inc()

	if cached, ok := s.cache.Get(datasetID); ok {
		s.metrics.PreviewCacheHits.Inc()
		return cached.head(rows), nil
	}

	if dataset.ArtifactKey == nil {
		return nil, types.NewNotFoundError("dataset.artifact.notfound", "Dataset %s has no artifact", datasetID)
	}
	data, err := s.store.Get(ctx, *dataset.ArtifactKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewNotFoundError("dataset.artifact.notfound", "Artifact of dataset %s is missing", datasetID)
		}
		return nil, types.NewDependencyError("dataset.artifact.read", err)
	}
	table, err := tabular.Parse(tabular.Format(dataset.Format), bytes.NewReader(data))
	if err != nil {
		return nil, types.NewDependencyError("dataset.artifact.parse", err)
	}

	preview := newPreview(datasetID, table, s.opts.PreviewRows)
	s.cache.Add(datasetID, preview)
	return preview.head(rows), nil
}

// Remove detaches a dataset from its project. The artifact is kept for audit.
func (s *DatasetService) Remove(ctx context.Context, callerID, datasetID string) (*models.Dataset, error) {
	var removed *models.Dataset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dataset, err := loadDataset(tx, datasetID, false)
		if err != nil {
			return err
		}
		if _, err := writableProject(tx, callerID, dataset.ProjectID); err != nil {
			return err
		}

		now := time.Now().UTC()
		update := tx.Model(&models.Dataset{}).
			Where("id = ? AND removed_at IS NULL", datasetID).
			Updates(map[string]any{"removed_at": now, "updated_at": now})
		if update.Error != nil {
			return storageError("dataset.remove", update.Error)
		}
		if update.RowsAffected == 0 {
			return types.NewNotFoundError("dataset.notfound", "Dataset %s has been removed", datasetID)
		}
		dataset.RemovedAt = &now
		removed = dataset
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Remove(datasetID)
	s.log.Info("dataset removed", zap.String("dataset_id", datasetID), zap.String("project_id", removed.ProjectID))
	return removed, nil
}

// Purge deletes a removed dataset's artifact and then its record. Only the
// project owner may purge.
func (s *DatasetService) Purge(ctx context.Context, callerID, datasetID string) error {
	db := s.db.WithContext(ctx)
	dataset, err := loadDataset(db, datasetID, true)
	if err != nil {
		return err
	}
	project, err := loadProject(db, dataset.ProjectID)
	if err != nil {
		return err
	}
	if project.OwnerID != callerID {
		return types.NewAuthorizationError("dataset.authorization.purge", "Only the project owner may purge datasets")
	}
	if dataset.Active() {
		return types.NewConflictError("dataset.state.active", "Dataset %s must be removed before it is purged", datasetID)
	}

	if dataset.ArtifactKey != nil {
		if err := s.store.Remove(ctx, *dataset.ArtifactKey); err != nil {
			return types.NewDependencyError("dataset.artifact.remove", err)
		}
	}
	if err := db.Delete(&models.Dataset{}, "id = ?", datasetID).Error; err != nil {
		return storageError("dataset.purge", err)
	}

	s.cache.Remove(datasetID)
	s.log.Info("dataset purged", zap.String("dataset_id", datasetID))
	return nil
}
