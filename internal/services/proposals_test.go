// proposals_test.go
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
	"sync"
	"testing"

	"github.com/localnerve/datashare/internal/metrics"
	"github.com/localnerve/datashare/internal/models"
	"github.com/localnerve/datashare/internal/notify"
	"github.com/localnerve/datashare/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type proposalFixture struct {
	db        *gorm.DB
	svc       *ProposalService
	projects  *ProjectService
	notifier  *recordingNotifier
	metrics   *metrics.Metrics
	owner     models.User
	applicant models.User
	named     models.User
	project   models.Project
}

func newProposalFixture(t *testing.T, granter Granter) *proposalFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &proposalFixture{
		db:        db,
		notifier:  &recordingNotifier{},
		metrics:   metrics.New(nil),
		owner:     createUser(t, db, "owner@example.org"),
		applicant: createUser(t, db, "x@example.org"),
		named:     createUser(t, db, "y@example.org"),
	}
	if granter == nil {
		granter = AccessGranter{}
	}
	f.svc = NewProposalService(db, granter, f.notifier, f.metrics, zap.NewNop())
	f.projects = NewProjectService(db, zap.NewNop())
	f.project = createProject(t, db, f.owner, false)
	return f
}

func (f *proposalFixture) submit(t *testing.T) *models.Proposal {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.applicant.ID, ProposalInput{
		ProjectID:    f.project.ID,
		ProposalText: "need data",
		Applicants:   []string{f.named.Email},
	})
	require.NoError(t, err)
	return res.Proposal
}

func TestAcceptScenario(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()

	p := f.submit(t)
	assert.Equal(t, models.StatusNone, p.Status)
	assert.Equal(t, []string{f.named.ID}, p.ApplicantUserIDs)

	evaluated, err := f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.VerdictAccept, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, evaluated.Status)
	assert.Equal(t, "looks good", evaluated.ReviewText)

	access, err := f.projects.AccessList(ctx, f.project.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.applicant.ID, f.named.ID}, access)

	for _, u := range []models.User{f.applicant, f.named} {
		shared, err := f.projects.SharedProjects(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, shared, 1)
		assert.Equal(t, f.project.ID, shared[0].ID)
	}

	stored, err := f.svc.Get(ctx, f.owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	require.NotNil(t, stored.ReviewerID)
	assert.Equal(t, f.owner.ID, *stored.ReviewerID)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.AccessGrants))

	events := f.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.ProposalCreated, events[0].Type)
	assert.Equal(t, []string{f.owner.ID}, events[0].Recipients)
	assert.Equal(t, notify.ProposalEvaluated, events[1].Type)
	assert.ElementsMatch(t, []string{f.applicant.ID, f.named.ID}, events[1].Recipients)
	assert.Equal(t, "accept", events[1].Status)
}

func TestRejectLeavesGraphUnchanged(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()
	p := f.submit(t)

	evaluated, err := f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.VerdictReject, "no")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, evaluated.Status)

	access, err := f.projects.AccessList(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, access)
}

func TestProposalTerminality(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()
	p := f.submit(t)

	_, err := f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.VerdictReject, "first")
	require.NoError(t, err)

	_, err = f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.VerdictAccept, "second")
	assert.True(t, types.IsKind(err, types.KindConflict), "got %v", err)

	_, err = f.svc.Amend(ctx, f.applicant.ID, p.ID, ProposalInput{
		ProposalText: "changed",
		Applicants:   []string{f.owner.Email},
	})
	assert.True(t, types.IsKind(err, types.KindConflict), "got %v", err)

	stored, err := f.svc.Get(ctx, f.applicant.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.Equal(t, "need data", stored.ProposalText)
	assert.Equal(t, "first", stored.ReviewText)
	assert.Equal(t, []string{f.named.ID}, stored.ApplicantUserIDs)

	access, err := f.projects.AccessList(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, access)
}

func TestEvaluateAuthorization(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()
	p := f.submit(t)

	_, err := f.svc.Evaluate(ctx, f.applicant.ID, p.ID, models.VerdictAccept, "")
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)

	_, err = f.svc.Evaluate(ctx, f.owner.ID, "missing", models.VerdictAccept, "")
	assert.True(t, types.IsKind(err, types.KindNotFound), "got %v", err)

	_, err = f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.Verdict("maybe"), "")
	assert.True(t, types.IsKind(err, types.KindValidation), "got %v", err)

	stored, err := f.svc.Get(ctx, f.owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, stored.Status)
}

func TestAmend(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()
	p := f.submit(t)

	_, err := f.svc.Amend(ctx, f.named.ID, p.ID, ProposalInput{ProposalText: "hijack"})
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)

	other := createProject(t, f.db, f.owner, true)
	_, err = f.svc.Amend(ctx, f.applicant.ID, p.ID, ProposalInput{ProjectID: other.ID, ProposalText: "move"})
	assert.True(t, types.IsKind(err, types.KindValidation), "got %v", err)

	res, err := f.svc.Amend(ctx, f.applicant.ID, p.ID, ProposalInput{
		ProposalText:              "need more data",
		PotentialResearchBenefits: "cures",
		Applicants:                []string{"Owner@Example.org", "ghost@example.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, "need more data", res.Proposal.ProposalText)
	assert.Equal(t, "cures", res.Proposal.PotentialResearchBenefits)
	assert.Equal(t, []string{f.owner.ID}, res.Proposal.ApplicantUserIDs)
	assert.Equal(t, []string{"ghost@example.org"}, res.Unresolved)
	assert.Equal(t, models.StatusNone, res.Proposal.Status)
}

func TestCreateValidation(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.applicant.ID, ProposalInput{ProjectID: "nope", ProposalText: "x"})
	assert.True(t, types.IsKind(err, types.KindNotFound), "got %v", err)

	_, err = f.svc.Create(ctx, f.applicant.ID, ProposalInput{ProjectID: f.project.ID, ProposalText: "x", Applicants: []string{"not-an-email"}})
	assert.True(t, types.IsKind(err, types.KindValidation), "got %v", err)

	_, err = f.svc.Create(ctx, f.applicant.ID, ProposalInput{ProjectID: f.project.ID})
	assert.True(t, types.IsKind(err, types.KindValidation), "got %v", err)

	res, err := f.svc.Create(ctx, f.applicant.ID, ProposalInput{
		ProjectID:    f.project.ID,
		ProposalText: "x",
		Applicants:   []string{"y@example.org", " Y@example.org ", "nobody@example.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{f.named.ID}, res.Proposal.ApplicantUserIDs)
	assert.Equal(t, []string{"nobody@example.org"}, res.Unresolved)

	var count int64
	require.NoError(t, f.db.Model(&models.Proposal{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// failingGranter writes the grant and then fails, as if propagation broke
// midway.
type failingGranter struct {
	inner Granter
}

func (g failingGranter) Grant(ctx context.Context, tx *gorm.DB, projectID, proposalID string, userIDs []string) (int64, error) {
	if _, err := g.inner.Grant(ctx, tx, projectID, proposalID, userIDs[:1]); err != nil {
		return 0, err
	}
	return 0, errors.New("propagation interrupted")
}

func TestGrantAtomicity(t *testing.T) {
	f := newProposalFixture(t, failingGranter{inner: AccessGranter{}})
	ctx := context.Background()
	p := f.submit(t)

	_, err := f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.VerdictAccept, "")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindDependency), "got %v", err)

	access, err := f.projects.AccessList(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Empty(t, access)

	for _, u := range []models.User{f.applicant, f.named} {
		shared, err := f.projects.SharedProjects(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, shared)
	}

	stored, err := f.svc.Get(ctx, f.owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, stored.Status)
	assert.Len(t, f.notifier.Events(), 1, "no evaluation event after rollback")

	// the proposal can still be evaluated once propagation works again
	f.svc.granter = AccessGranter{}
	_, err = f.svc.Evaluate(ctx, f.owner.ID, p.ID, models.VerdictAccept, "")
	require.NoError(t, err)
	access, err = f.projects.AccessList(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, access, 2)
}

func TestConcurrentEvaluation(t *testing.T) {
	f := newProposalFixture(t, nil)
	p := f.submit(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		verdict := models.VerdictAccept
		if i%2 == 1 {
			verdict = models.VerdictReject
		}
		wg.Add(1)
		go func(v models.Verdict) {
			defer wg.Done()
			_, err := f.svc.Evaluate(context.Background(), f.owner.ID, p.ID, v, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case types.IsKind(err, types.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(verdict)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProposalTransitions.WithLabelValues("evaluate", metrics.OutcomeOK)))
}

func TestProposalReads(t *testing.T) {
	f := newProposalFixture(t, nil)
	ctx := context.Background()
	p := f.submit(t)
	stranger := createUser(t, f.db, "stranger@example.org")

	_, err := f.svc.Get(ctx, f.named.ID, p.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, stranger.ID, p.ID)
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)

	mine, err := f.svc.ListForUser(ctx, f.named.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, []string{f.named.ID}, mine[0].ApplicantUserIDs)

	mine, err = f.svc.ListForUser(ctx, stranger.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	list, err := f.svc.ListForProject(ctx, f.owner.ID, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListForProject(ctx, f.applicant.ID, f.project.ID)
	assert.True(t, types.IsKind(err, types.KindAuthorization), "got %v", err)
}
