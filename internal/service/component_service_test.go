package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type ComponentServiceTestSuite struct {
	suite.Suite
	env *testEnv

	admin *models.User
	coach *models.User
	dev   *models.User
	other *models.User
}

func (s *ComponentServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.admin = s.env.user(s.T(), "admin", models.RoleAdmin)
	s.coach = s.env.user(s.T(), "coach", models.RoleCoach)
	s.dev = s.env.user(s.T(), "dev", models.RoleDeveloper)
	s.other = s.env.user(s.T(), "other", models.RoleDeveloper)
}

func (s *ComponentServiceTestSuite) validInput() ComponentInput {
	return ComponentInput{
		Name:        "Primary Button",
		Description: "<b>Bold</b> call to action<script>alert(1)</script>",
		Category:    "button",
		Code:        "<button class=\"primary\">Go</button>",
	}
}

func (s *ComponentServiceTestSuite) TestCreateStartsAsDraft() {
	c, err := s.env.componentSvc.Create(s.dev, s.validInput())
	s.Require().NoError(err)

	s.Equal(models.StatusDraft, c.Status)
	s.Equal(models.CategoryButton, c.Category)
	s.Equal(s.dev.ID, c.OwnerID)
	s.NotContains(c.Description, "<script>")
	s.NotContains(c.Description, "<b>")
}

func (s *ComponentServiceTestSuite) TestCreateValidation() {
	input := s.validInput()
	input.Category = "CAROUSEL"
	_, err := s.env.componentSvc.Create(s.dev, input)
	s.ErrorIs(err, apperror.ErrValidation)

	input = s.validInput()
	input.Name = "   "
	_, err = s.env.componentSvc.Create(s.dev, input)
	s.ErrorIs(err, apperror.ErrValidation)

	input = s.validInput()
	input.Code = ""
	_, err = s.env.componentSvc.Create(s.dev, input)
	s.ErrorIs(err, apperror.ErrValidation)
}

func (s *ComponentServiceTestSuite) TestUpdateOnlyOwnDrafts() {
	c := s.env.component(s.T(), s.dev, "Card", models.StatusDraft)

	input := s.validInput()
	input.Name = "Renamed"
	updated, err := s.env.componentSvc.Update(s.dev, c.ID, input)
	s.Require().NoError(err)
	s.Equal("Renamed", updated.Name)

	_, err = s.env.componentSvc.Update(s.other, c.ID, input)
	s.ErrorIs(err, apperror.ErrForbidden)

	pending := s.env.component(s.T(), s.dev, "Modal", models.StatusPending)
	_, err = s.env.componentSvc.Update(s.dev, pending.ID, input)
	s.ErrorIs(err, apperror.ErrConflict)
	s.Equal("Modal", s.env.reload(s.T(), pending.ID).Name)
}

func (s *ComponentServiceTestSuite) TestSubmitMovesDraftToPending() {
	ctx := context.Background()
	c := s.env.component(s.T(), s.dev, "Input", models.StatusDraft)

	submitted, err := s.env.componentSvc.Submit(ctx, s.dev, testMeta, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, submitted.Status)
	s.Equal(models.StatusPending, s.env.reload(s.T(), c.ID).Status)

	// every coach and admin hears about it, nobody else
	s.EqualValues(1, s.env.countNotifications(s.T(), s.coach.ID, models.VerbComponentSubmitted))
	s.EqualValues(1, s.env.countNotifications(s.T(), s.admin.ID, models.VerbComponentSubmitted))
	s.EqualValues(0, s.env.countNotifications(s.T(), s.other.ID, models.VerbComponentSubmitted))
	s.EqualValues(0, s.env.countNotifications(s.T(), s.dev.ID, models.VerbComponentSubmitted))
	s.Len(s.env.broker.For(s.coach.ID), 1)

	rows := s.env.auditRows(s.T(), models.ActionComponentSubmitted)
	s.Require().Len(rows, 1)
	s.Equal(s.dev.ID, *rows[0].ActorID)
	s.Equal("pending", rows[0].Changes["new_status"])
	s.Equal("203.0.113.7", *rows[0].IPAddress)
}

func (s *ComponentServiceTestSuite) TestSubmitGuards() {
	ctx := context.Background()
	c := s.env.component(s.T(), s.dev, "Input", models.StatusDraft)

	_, err := s.env.componentSvc.Submit(ctx, s.other, testMeta, c.ID)
	s.ErrorIs(err, apperror.ErrForbidden)
	s.Equal(models.StatusDraft, s.env.reload(s.T(), c.ID).Status)

	_, err = s.env.componentSvc.Submit(ctx, s.dev, testMeta, c.ID)
	s.Require().NoError(err)

	_, err = s.env.componentSvc.Submit(ctx, s.dev, testMeta, c.ID)
	s.ErrorIs(err, apperror.ErrConflict)
	s.Equal("state_conflict", apperror.KindName(err))
	s.Equal(models.StatusPending, s.env.reload(s.T(), c.ID).Status)

	// the rejected submit created no extra notifications or audit rows
	s.EqualValues(1, s.env.countNotifications(s.T(), s.coach.ID, models.VerbComponentSubmitted))
	s.Len(s.env.auditRows(s.T(), models.ActionComponentSubmitted), 1)

	for _, status := range []models.ComponentStatus{models.StatusApproved, models.StatusRejected} {
		done := s.env.component(s.T(), s.dev, "Done "+string(status), status)
		_, err := s.env.componentSvc.Submit(ctx, s.dev, testMeta, done.ID)
		s.ErrorIs(err, apperror.ErrConflict)
	}
}

func (s *ComponentServiceTestSuite) TestDecideApprove() {
	ctx := context.Background()
	c := s.env.component(s.T(), s.dev, "Card", models.StatusPending)

	approved, err := s.env.componentSvc.Decide(ctx, s.coach, testMeta, c.ID, DecisionApprove, "")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)

	s.EqualValues(1, s.env.countNotifications(s.T(), s.dev.ID, models.VerbComponentReviewed))
	s.EqualValues(1, s.env.countNotifications(s.T(), s.admin.ID, models.VerbComponentReviewed))
	s.EqualValues(0, s.env.countNotifications(s.T(), s.coach.ID, models.VerbComponentReviewed))

	rows := s.env.auditRows(s.T(), models.ActionComponentApproved)
	s.Require().Len(rows, 1)
	s.Equal(s.coach.ID, *rows[0].ActorID)
	s.Equal(s.dev.ID, *rows[0].TargetUserID)

	s.Equal(1.0, testutil.ToFloat64(s.env.metrics.Transitions.WithLabelValues("approve", "ok")))
}

func (s *ComponentServiceTestSuite) TestDecideRejectCarriesReason() {
	ctx := context.Background()
	c := s.env.component(s.T(), s.dev, "Card", models.StatusPending)

	rejected, err := s.env.componentSvc.Decide(ctx, s.admin, testMeta, c.ID, DecisionReject, "Missing focus styles")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)

	page, err := s.env.notifications.ListForRecipient(s.dev.ID, repository.NotificationFilter{})
	s.Require().NoError(err)
	s.Require().Len(page.Notifications, 1)
	s.Contains(page.Notifications[0].Message, "rejected")
	s.Contains(page.Notifications[0].Message, "Missing focus styles")

	rows := s.env.auditRows(s.T(), models.ActionComponentRejected)
	s.Require().Len(rows, 1)
	s.Equal("Missing focus styles", rows[0].Changes["reason"])
}

func (s *ComponentServiceTestSuite) TestDecideGuards() {
	ctx := context.Background()
	pending := s.env.component(s.T(), s.dev, "Pending", models.StatusPending)
	draft := s.env.component(s.T(), s.dev, "Draft", models.StatusDraft)

	_, err := s.env.componentSvc.Decide(ctx, s.other, testMeta, pending.ID, DecisionApprove, "")
	s.ErrorIs(err, apperror.ErrForbidden)

	_, err = s.env.componentSvc.Decide(ctx, s.coach, testMeta, pending.ID, Decision("maybe"), "")
	s.ErrorIs(err, apperror.ErrValidation)

	_, err = s.env.componentSvc.Decide(ctx, s.coach, testMeta, draft.ID, DecisionApprove, "")
	s.ErrorIs(err, apperror.ErrConflict)
	s.Equal(models.StatusDraft, s.env.reload(s.T(), draft.ID).Status)

	_, err = s.env.componentSvc.Decide(ctx, s.coach, testMeta, pending.ID, DecisionApprove, "")
	s.Require().NoError(err)
	_, err = s.env.componentSvc.Decide(ctx, s.coach, testMeta, pending.ID, DecisionReject, "")
	s.ErrorIs(err, apperror.ErrConflict)
	s.Equal(models.StatusApproved, s.env.reload(s.T(), pending.ID).Status)
}

func TestComponentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ComponentServiceTestSuite))
}

// Two reviewers acting on the same pending component: exactly one wins.
func TestDecideConcurrentReviewersSingleWinner(t *testing.T) {
	pairs := []struct {
		name   string
		first  Decision
		second Decision
	}{
		{"approve/approve", DecisionApprove, DecisionApprove},
		{"approve/reject", DecisionApprove, DecisionReject},
		{"reject/reject", DecisionReject, DecisionReject},
	}

	for _, tc := range pairs {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			admin := env.user(t, "admin", models.RoleAdmin)
			coach := env.user(t, "coach", models.RoleCoach)
			dev := env.user(t, "dev", models.RoleDeveloper)
			c := env.component(t, dev, "Racy", models.StatusPending)

			reviewers := []*models.User{coach, admin}
			decisions := []Decision{tc.first, tc.second}

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := range reviewers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = env.componentSvc.Decide(context.Background(), reviewers[i], testMeta, c.ID, decisions[i], "")
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.True(t, errors.Is(err, apperror.ErrConflict), "loser must see a state conflict, got %v", err)
			}
			require.Equal(t, 1, succeeded)

			final := env.reload(t, c.ID).Status
			assert.True(t, final == models.StatusApproved || final == models.StatusRejected)

			decided := len(env.auditRows(t, models.ActionComponentApproved)) + len(env.auditRows(t, models.ActionComponentRejected))
			assert.Equal(t, 1, decided)
			assert.EqualValues(t, 1, env.countNotifications(t, dev.ID, models.VerbComponentReviewed))
		})
	}
}

// The row moves to a decided state after the transaction loaded it; the
// conditional update must notice and the decision must leave no trace.
func TestDecideLosesWhenStatusChangesAfterLoad(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "admin", models.RoleAdmin)
	coach := env.user(t, "coach", models.RoleCoach)
	dev := env.user(t, "dev", models.RoleDeveloper)
	c := env.component(t, dev, "Racy", models.StatusPending)

	afterFirstQuery(t, env.db, "components", func(tx *gorm.DB) {
		_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE components SET status = ? WHERE id = ?", string(models.StatusRejected), c.ID)
		require.NoError(t, err)
	})

	_, err := env.componentSvc.Decide(context.Background(), coach, testMeta, c.ID, DecisionApprove, "")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// the simulated competing write ran inside the losing transaction and
	// was rolled back with it
	assert.Equal(t, models.StatusPending, env.reload(t, c.ID).Status)
	assert.Empty(t, env.auditRows(t, models.ActionComponentApproved))
	assert.EqualValues(t, 0, env.countNotifications(t, dev.ID, models.VerbComponentReviewed))
	assert.Empty(t, env.indexer.Indexed())
}

func TestSearchIndexFollowsApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	coach := env.user(t, "coach", models.RoleCoach)
	dev := env.user(t, "dev", models.RoleDeveloper)
	approved := env.component(t, dev, "Approved", models.StatusPending)
	rejected := env.component(t, dev, "Rejected", models.StatusPending)
	draft := env.component(t, dev, "Draft", models.StatusDraft)

	_, err := env.componentSvc.Decide(ctx, coach, testMeta, approved.ID, DecisionApprove, "")
	require.NoError(t, err)
	_, err = env.componentSvc.Decide(ctx, coach, testMeta, rejected.ID, DecisionReject, "no")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{approved.ID}, env.indexer.Indexed())

	require.NoError(t, env.componentSvc.Delete(dev, testMeta, draft.ID))
	require.NoError(t, env.componentSvc.Delete(dev, testMeta, rejected.ID))
	assert.Empty(t, env.indexer.Deleted())

	require.NoError(t, env.componentSvc.Delete(dev, testMeta, approved.ID))
	assert.Equal(t, []string{approved.ID.String()}, env.indexer.Deleted())
}

func TestComponentVisibility(t *testing.T) {
	env := newTestEnv(t)
	coach := env.user(t, "coach", models.RoleCoach)
	dev := env.user(t, "dev", models.RoleDeveloper)
	other := env.user(t, "other", models.RoleDeveloper)

	draft := env.component(t, dev, "Draft", models.StatusDraft)
	pending := env.component(t, dev, "Pending", models.StatusPending)
	approved := env.component(t, dev, "Approved", models.StatusApproved)

	cases := []struct {
		name    string
		viewer  *models.User
		target  *models.Component
		visible bool
	}{
		{"anonymous approved", nil, approved, true},
		{"anonymous pending", nil, pending, false},
		{"owner draft", dev, draft, true},
		{"stranger draft", other, draft, false},
		{"stranger pending", other, pending, false},
		{"coach pending", coach, pending, true},
		{"coach draft", coach, draft, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.componentSvc.Get(tc.viewer, tc.target.ID)
			if tc.visible {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperror.ErrNotFound)
			}
		})
	}
}

func TestListApprovedFiltersAndValidatesCategory(t *testing.T) {
	env := newTestEnv(t)
	dev := env.user(t, "dev", models.RoleDeveloper)
	env.component(t, dev, "Shiny", models.StatusApproved)
	env.component(t, dev, "Hidden", models.StatusPending)

	items, err := env.componentSvc.ListApproved("", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Shiny", items[0].Name)

	items, err = env.componentSvc.ListApproved("button", "shin")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = env.componentSvc.ListApproved("MODAL", "")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = env.componentSvc.ListApproved("carousel", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestPendingQueueAndStatsRequireValidator(t *testing.T) {
	env := newTestEnv(t)
	coach := env.user(t, "coach", models.RoleCoach)
	dev := env.user(t, "dev", models.RoleDeveloper)
	env.component(t, dev, "A", models.StatusPending)
	env.component(t, dev, "B", models.StatusPending)
	env.component(t, dev, "C", models.StatusApproved)
	env.component(t, dev, "D", models.StatusRejected)
	env.component(t, dev, "E", models.StatusDraft)

	_, err := env.componentSvc.ListPending(dev)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = env.componentSvc.Stats(dev)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	pending, err := env.componentSvc.ListPending(coach)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	stats, err := env.componentSvc.Stats(coach)
	require.NoError(t, err)
	assert.Equal(t, ComponentStats{Pending: 2, Approved: 1, Rejected: 1}, *stats)
}

func TestDeleteComponentRemovesReviewsAndNotifications(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.user(t, "admin", models.RoleAdmin)
	dev := env.user(t, "dev", models.RoleDeveloper)
	other := env.user(t, "other", models.RoleDeveloper)
	c := env.component(t, dev, "Doomed", models.StatusApproved)

	_, err := env.reviewSvc.Create(ctx, other, c.ID, 4, "nice")
	require.NoError(t, err)
	require.EqualValues(t, 1, env.countNotifications(t, dev.ID, models.VerbReviewCreated))

	assert.ErrorIs(t, env.componentSvc.Delete(other, testMeta, c.ID), apperror.ErrForbidden)

	require.NoError(t, env.componentSvc.Delete(dev, testMeta, c.ID))
	assert.Nil(t, env.reload(t, c.ID))
	assert.EqualValues(t, 0, env.countNotifications(t, dev.ID, models.VerbReviewCreated))

	summary, err := env.reviews.Summary(c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, summary.Count)

	rows := env.auditRows(t, models.ActionComponentDeleted)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SeverityWarning, rows[0].Severity)
}
