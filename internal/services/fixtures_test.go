package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/localnerve/datashare/internal/anonymize"
	"github.com/localnerve/datashare/internal/database"
	"github.com/localnerve/datashare/internal/metrics"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/notify"
	"github.com/localnerve/datashare/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// setupTestDB creates an isolated in-memory database for one test
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	u := models.User{Email: email, Name: email, Verified: true}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func createProject(t *testing.T, db *gorm.DB, owner models.User, public bool) models.Project {
	t.Helper()
	p := models.Project{OwnerID: owner.ID, Name: "project of " + owner.Email, IsPublic: public}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func addMember(t *testing.T, db *gorm.DB, userID, projectID string, role models.MemberRole) {
	t.Helper()
	require.NoError(t, db.Create(&models.ProjectMember{UserID: userID, ProjectID: projectID, Role: role}).Error)
}

// recordingNotifier keeps every event it is given
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func newTestEngine(t *testing.T) *anonymize.Engine {
	t.Helper()
	m, err := anonymize.NewMasker([]byte("test-mask-secret"))
	require.NoError(t, err)
	return anonymize.NewEngine(m, anonymize.Options{})
}

func newTestDatasetService(t *testing.T, db *gorm.DB, store storage.Store) *DatasetService {
	t.Helper()
	if store == nil {
		store = storage.NewFsStore(afero.NewMemMapFs(), true)
	}
	svc, err := NewDatasetService(db, store, newTestEngine(t), metrics.New(nil), zap.NewNop(), DatasetOptions{
		PreviewRows: 50,
		CacheSize:   8,
	})
	require.NoError(t, err)
	return svc
}
