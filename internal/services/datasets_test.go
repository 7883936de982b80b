// datasets_test.go
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
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/localnerve/datashare/data"
	"github.com/localnerve/datashare/internal/anonymize"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/storage"
	"github.com/localnerve/datashare/internal/tabular"
	"github.com/localnerve/datashare/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// countingStore records calls to an underlying store and can fail writes.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	puts    int
	removes int
	failPut error
	onPut   func()
}

func (s *countingStore) Put(ctx context.Context, key string, r io.Reader) error {
	s.mu.Lock()
	s.puts++
	fail, hook := s.failPut, s.onPut
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail != nil {
		return fail
	}
	return s.Store.Put(ctx, key, r)
}

func (s *countingStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	s.removes++
	s.mu.Unlock()
	return s.Store.Remove(ctx, key)
}

func newCountingStore() *countingStore {
	return &countingStore{Store: storage.NewFsStore(afero.NewMemMapFs(), true)}
}

type datasetFixture struct {
	db       *gorm.DB
	svc      *DatasetService
	store    *countingStore
	projects *ProjectService
	owner    models.User
	project  models.Project
}

func newDatasetFixture(t *testing.T, public bool) *datasetFixture {
	t.Helper()
	db := setupTestDB(t)
	store := newCountingStore()
	owner := createUser(t, db, "owner@example.org")
	return &datasetFixture{
		db:       db,
		svc:      newTestDatasetService(t, db, store),
		store:    store,
		projects: NewProjectService(db, zap.NewNop()),
		owner:    owner,
		project:  createProject(t, db, owner, public),
	}
}

func patientSpec(t *testing.T) ColumnSpec {
	t.Helper()
	spec, err := ParseColumnSpec("name,age,ssn", "keep,mask,remove")
	require.NoError(t, err)
	return spec
}

func (f *datasetFixture) upload(t *testing.T, name, file string) Upload {
	t.Helper()
	content, err := data.Sample(file)
	require.NoError(t, err)
	return Upload{
		ProjectID: f.project.ID,
		Name:      name,
		Filename:  file,
		Content:   content,
		Spec:      patientSpec(t),
	}
}

func readArtifact(t *testing.T, store storage.Store, d *models.Dataset) *tabular.Table {
	t.Helper()
	require.NotNil(t, d.ArtifactKey)
	raw, err := store.Get(context.Background(), *d.ArtifactKey)
	require.NoError(t, err)
	table, err := tabular.Parse(tabular.Format(d.Format), bytes.NewReader(raw))
	require.NoError(t, err)
	return table
}

func TestIngestCSV(t *testing.T) {
	f := newDatasetFixture(t, false)
	ctx := context.Background()

	d, err := f.svc.Ingest(ctx, f.owner.ID, f.upload(t, "patients", "patients.csv"))
	require.NoError(t, err)
	assert.Equal(t, "csv", d.Format)
	assert.Equal(t, 3, d.RowCount)
	assert.Equal(t, storage.ArtifactKey(f.project.ID, d.ID, "csv"), *d.ArtifactKey)

	table := readArtifact(t, f.store, d)
	assert.Equal(t, []string{"name", "age"}, table.Columns)
	assert.Equal(t, -1, table.ColumnIndex("ssn"))
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "alice", table.Rows[0][0])
	assert.NotEqual(t, "34", table.Rows[0][1])
	assert.Equal(t, table.Rows[0][1], table.Rows[1][1], "equal inputs mask equally")
	assert.NotEqual(t, table.Rows[0][1], table.Rows[2][1])

	var stored models.Dataset
	require.NoError(t, f.db.First(&stored, "id = ?", d.ID).Error)
	descriptors, err := stored.Columns.ColumnDescriptors()
	require.NoError(t, err)
	assert.Equal(t, []models.ColumnDescriptor{
		{Name: "name", Action: "keep"},
		{Name: "age", Action: "mask"},
		{Name: "ssn", Action: "remove"},
	}, descriptors)

	detail, err := f.projects.Get(ctx, f.owner.ID, f.project.ID)
	require.NoError(t, err)
	require.Len(t, detail.Datasets, 1)
	assert.Equal(t, d.ID, detail.Datasets[0].ID)
}

func TestLivePreviewMatchesStoredPreview(t *testing.T) {
	tests := []struct {
		name, file, content, names, actions string
	}{
		{name: "csv", file: "patients.csv", names: "name,age,ssn", actions: "keep,mask,remove"},
		{name: "json", file: "patients.json", names: "name,age,ssn", actions: "keep,mask,remove"},
		{
			name:    "csv single column with empty cell",
			file:    "patients.csv",
			content: "name,ssn\nalice,1\n,2\nbob,3\n",
			names:   "name,ssn",
			actions: "keep,remove",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDatasetFixture(t, false)
			ctx := context.Background()
			up := f.upload(t, "patients", tt.file)
			if tt.content != "" {
				up.Content = []byte(tt.content)
			}
			spec, err := ParseColumnSpec(tt.names, tt.actions)
			require.NoError(t, err)
			up.Spec = spec

			live, err := f.svc.LivePreview(ctx, f.owner.ID, up)
			require.NoError(t, err)
			assert.Equal(t, 0, f.store.puts, "live preview persists nothing")

			d, err := f.svc.Ingest(ctx, f.owner.ID, up)
			require.NoError(t, err)
			assert.Equal(t, live.TotalRows, d.RowCount)
			stored, err := f.svc.Preview(ctx, f.owner.ID, d.ID, 0)
			require.NoError(t, err)

			assert.Equal(t, live.Columns, stored.Columns)
			assert.Equal(t, live.TotalRows, stored.TotalRows)
			require.Len(t, stored.Rows, len(live.Rows))
			for i := range live.Rows {
				assert.JSONEq(t, string(live.Rows[i]), string(stored.Rows[i]))
			}
			assert.NotContains(t, stored.Columns, "ssn")
		})
	}
}

func TestIngestJSONKeepsNestedValues(t *testing.T) {
	f := newDatasetFixture(t, false)
	spec, err := ParseColumnSpec("name,age,ssn,visits", "mask,keep,remove,keep")
	require.NoError(t, err)
	up := f.upload(t, "patients", "patients.json")
	up.Spec = spec

	d, err := f.svc.Ingest(context.Background(), f.owner.ID, up)
	require.NoError(t, err)

	table := readArtifact(t, f.store, d)
	assert.Equal(t, []string{"name", "age", "visits"}, table.Columns)
	assert.Equal(t, "34", table.Rows[0][1])
	assert.JSONEq(t, "[1, 2]", table.Rows[0][2])
	assert.Equal(t, "null", table.Rows[2][2])
	assert.NotEqual(t, `"alice"`, table.Rows[0][0])
}

func TestIngestRejectsBadUploads(t *testing.T) {
	f := newDatasetFixture(t, false)
	ctx := context.Background()

	mismatch := f.upload(t, "patients", "patients.csv")
	spec, err := ParseColumnSpec("name,age", "keep,mask")
	require.NoError(t, err)
	mismatch.Spec = spec

	unsupported := f.upload(t, "patients", "patients.csv")
	unsupported.Filename = "patients.xlsx"

	empty := f.upload(t, "patients", "patients.csv")
	empty.Content = nil

	malformed := f.upload(t, "patients", "patients.json")
	malformed.Content = []byte(`{"name": "alice"}`)

	unnamed := f.upload(t, "  ", "patients.csv")

	allRemoved := f.upload(t, "patients", "patients.csv")
	allRemoved.Spec = ColumnSpec{Columns: []anonymize.Column{
		{Name: "name", Action: anonymize.ActionRemove},
		{Name: "age", Action: anonymize.ActionRemove},
		{Name: "ssn", Action: anonymize.ActionRemove},
	}}

	for name, up := range map[string]Upload{
		"header mismatch": mismatch,
		"unsupported":     unsupported,
		"empty":           empty,
		"malformed":       malformed,
		"unnamed":         unnamed,
		"all removed":     allRemoved,
	} {
		_, err := f.svc.Ingest(ctx, f.owner.ID, up)
		assert.True(t, types.IsKind(err, types.KindValidation), "%s: got %v", name, err)
	}

	_, err = f.svc.LivePreview(ctx, f.owner.ID, allRemoved)
	assert.True(t, types.IsKind(err, types.KindValidation), "live preview: got %v", err)

	assert.Equal(t, 0, f.store.puts)
	var count int64
	require.NoError(t, f.db.Model(&models.Dataset{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestStoreFailure(t *testing.T) {
	f := newDatasetFixture(t, false)
	f.store.failPut = errors.New("bucket unavailable")

	_, err := f.svc.Ingest(context.Background(), f.owner.ID, f.upload(t, "patients", "patients.csv"))
	assert.True(t, types.IsKind(err, types.KindDependency), "got %v", err)

	var count int64
	require.NoError(t, f.db.Model(&models.Dataset{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestTimeoutReleasesSlot(t *testing.T) {
	f := newDatasetFixture(t, false)
	ctx := context.Background()

	var content strings.Builder
	content.WriteString("name,age,ssn\n")
	for i := 0; i < 20000; i++ {
		fmt.Fprintf(&content, "user%d,%d,%09d\n", i, i%90, i)
	}
	up := f.upload(t, "patients", "patients.csv")
	up.Content = []byte(content.String())

	f.svc.opts.IngestTimeout = time.Nanosecond
	_, err := f.svc.Ingest(ctx, f.owner.ID, up)
	var ce *types.CustomError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, types.KindDependency, ce.Kind)
	assert.Equal(t, "dataset.desensitize", ce.Type)
	assert.Equal(t, 0, f.svc.locks.Held())
	assert.Equal(t, 0, f.store.puts)

	f.svc.opts.IngestTimeout = time.Minute
	d, err := f.svc.Ingest(ctx, f.owner.ID, up)
	require.NoError(t, err)
	assert.Equal(t, 20000, d.RowCount)
}

func TestIngestRechecksNameWhenRecording(t *testing.T) {
	f := newDatasetFixture(t, false)

	// Another instance records the same slot while the artifact is written.
	f.store.onPut = func() {
		other := models.Dataset{ProjectID: f.project.ID, Name: "patients", Format: "csv"}
		require.NoError(t, f.db.Create(&other).Error)
	}

	_, err := f.svc.Ingest(context.Background(), f.owner.ID, f.upload(t, "patients", "patients.csv"))
	assert.True(t, types.IsKind(err, types.KindConflict), "got %v", err)
	assert.Equal(t, 1, f.store.removes, "artifact of the losing upload is removed")

	var count int64
	require.NoError(t, f.db.Model(&models.Dataset{}).Where("name = ?", "patients").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIngestRemovesArtifactWhenRecordFails(t *testing.T) {
	f := newDatasetFixture(t, false)
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_dataset", func(tx *gorm.DB) {
		if tx.Statement.Table == "datasets" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.svc.Ingest(context.Background(), f.owner.ID, f.upload(t, "patients", "patients.csv"))
	assert.True(t, types.IsKind(err, types.KindDependency), "got %v", err)
	assert.Equal(t, 1, f.store.puts)
	assert.Equal(t, 1, f.store.removes)

	var count int64
	require.NoError(t, f.db.Model(&models.Dataset{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestSlotConflicts(t *testing.T) {
	f := newDatasetFixture(t, false)
	ctx := context.Background()
	up := f.upload(t, "patients", "patients.csv")

	release, ok := f.svc.locks.TryLock(slotKey(f.project.ID, "patients"))
	require.True(t, ok)
	_, err := f.svc.Ingest(ctx, f.owner.ID, up)
	assert.True(t, types.IsKind(err, types.KindConflict), "got %v", err)
	release()
	assert.Zero(t, f.svc.locks.Held())

	first, err := f.svc.Ingest(ctx, f.owner.ID, up)
	require.NoError(t, err)

	_, err = f.svc.Ingest(ctx, f.owner.ID, up)
	assert.True(t, types.IsKind(err, types.KindConflict), "got %v", err)

	other := up
	other.Name = "patients-2"
	_, err = f.svc.Ingest(ctx, f.owner.ID, other)
	require.NoError(t, err)

	_, err = f.svc.Remove(ctx, f.owner.ID, first.ID)
	require.NoError(t, err)
	again, err := f.svc.Ingest(ctx, f.owner.ID, up)
	require.NoError(t, err)
	assert.NotEqual(t, *first.ArtifactKey, *again.ArtifactKey)
}

func TestDatasetAccess(t *testing.T) {
	f := newDatasetFixture(t, false)
	ctx := context.Background()
	collaborator := createUser(t, f.db, "collab@example.org")
	granted := createUser(t, f.db, "granted@example.org")
	stranger := createUser(t, f.db, "stranger@example.org")
	addMember(t, f.db, collaborator.ID, f.project.ID, models.RoleCollaborator)

	_, err := f.svc.Ingest(ctx, stranger.ID, f.upload(t, "patients", "patients.csv"))
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)
	_, err = f.svc.LivePreview(ctx, stranger.ID, f.upload(t, "patients", "patients.csv"))
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)

	d, err := f.svc.Ingest(ctx, collaborator.ID, f.upload(t, "patients", "patients.csv"))
	require.NoError(t, err)

	_, err = f.svc.Preview(ctx, granted.ID, d.ID, 0)
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)

	addMember(t, f.db, granted.ID, f.project.ID, models.RoleShared)
	preview, err := f.svc.Preview(ctx, granted.ID, d.ID, 0)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 3)

	_, err = f.svc.Ingest(ctx, granted.ID, f.upload(t, "other", "patients.csv"))
	assert.True(t, types.IsKind(err, types.KindAuthorization), "granted users cannot write: %v", err)

	_, err = f.svc.Preview(ctx, stranger.ID, d.ID, 0)
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)
}

func TestPublicPreview(t *testing.T) {
	f := newDatasetFixture(t, true)
	ctx := context.Background()
	d, err := f.svc.Ingest(ctx, f.owner.ID, f.upload(t, "patients", "patients.csv"))
	require.NoError(t, err)

	preview, err := f.svc.Preview(ctx, "", d.ID, 1)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 1)
	assert.Equal(t, 3, preview.TotalRows)

	preview, err = f.svc.Preview(ctx, "", d.ID, 500)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.PreviewCacheHits))
}

func TestRemoveAndPurge(t *testing.T) {
	f := newDatasetFixture(t, false)
	ctx := context.Background()
	collaborator := createUser(t, f.db, "collab@example.org")
	addMember(t, f.db, collaborator.ID, f.project.ID, models.RoleCollaborator)

	d, err := f.svc.Ingest(ctx, f.owner.ID, f.upload(t, "patients", "patients.csv"))
	require.NoError(t, err)
	_, err = f.svc.Preview(ctx, f.owner.ID, d.ID, 0)
	require.NoError(t, err)

	err = f.svc.Purge(ctx, f.owner.ID, d.ID)
	assert.True(t, types.IsKind(err, types.KindConflict), "got %v", err)

	removed, err := f.svc.Remove(ctx, collaborator.ID, d.ID)
	require.NoError(t, err)
	assert.NotNil(t, removed.RemovedAt)

	_, err = f.svc.Preview(ctx, f.owner.ID, d.ID, 0)
	assert.True(t, types.IsKind(err, types.KindNotFound), "got %v", err)
	_, err = f.svc.Remove(ctx, f.owner.ID, d.ID)
	assert.True(t, types.IsKind(err, types.KindNotFound), "got %v", err)

	detail, err := f.projects.Get(ctx, f.owner.ID, f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Datasets)

	_, err = f.store.Get(ctx, *d.ArtifactKey)
	require.NoError(t, err, "removal keeps the artifact")

	err = f.svc.Purge(ctx, collaborator.ID, d.ID)
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)

	require.NoError(t, f.svc.Purge(ctx, f.owner.ID, d.ID))
	_, err = f.store.Get(ctx, *d.ArtifactKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = f.svc.Purge(ctx, f.owner.ID, d.ID)
	assert.True(t, types.IsKind(err, types.KindNotFound), "got %v", err)
}
