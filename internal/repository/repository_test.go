package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/vertex-tips/config"
	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/pkg/database"
)

func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(tb, err)
	require.NoError(tb, database.Migrate(db))
	tb.Cleanup(func() { _ = database.Close(db) })
	return db
}

func seedPrediction(tb testing.TB, repo PredictionRepository, match string, eventDate time.Time) *model.Prediction {
	tb.Helper()
	p := &model.Prediction{
		MatchName:   match,
		Sport:       "soccer",
		Odds:        2.0,
		EventDate:   eventDate.UTC(),
		TipsterName: "X",
		Status:      model.StatusPending,
	}
	require.NoError(tb, repo.Create(context.Background(), p))
	return p
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.User{Email: "a@example.com", PasswordHash: "h", Role: model.RoleUser})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, &model.User{Email: "a@example.com", PasswordHash: "h2", Role: model.RoleUser})
	require.NoError(t, err)
	assert.False(t, created, "duplicate email must not insert")

	u, err := repo.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h", u.PasswordHash)

	_, err = repo.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	ok, err := repo.UpdateRole(ctx, u.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	ok, err = repo.UpdateRole(ctx, 9999, model.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Create(ctx, &model.User{Email: "b@example.com", PasswordHash: "h", Role: model.RoleUser})
	require.NoError(t, err)
	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "b@example.com", users[0].Email)
}

func TestPredictionRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPredictionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := seedPrediction(t, repo, "Past", now.Add(-24*time.Hour))
	late := seedPrediction(t, repo, "Late", now.Add(72*time.Hour))
	soon := seedPrediction(t, repo, "Soon", now.Add(24*time.Hour))

	upcoming, err := repo.ListUpcoming(ctx, now)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, soon.ID, upcoming[0].ID)
	assert.Equal(t, late.ID, upcoming[1].ID)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, past.ID, all[0].ID)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, soon.ID, recent[0].ID)

	fetched, err := repo.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, "Soon", fetched.MatchName)
	_, err = repo.Get(ctx, 12345)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	ok, err := repo.Settle(ctx, soon.ID, model.StatusWon)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Settle(ctx, soon.ID, model.StatusLost)
	require.NoError(t, err)
	assert.False(t, ok, "terminal status must not be overwritten")

	got, err := repo.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWon, got.Status)
}

func TestFollowRepository(t *testing.T) {
	db := setupTestDB(t)
	preds := NewPredictionRepository(db)
	follows := NewFollowRepository(db)
	ctx := context.Background()

	p1 := seedPrediction(t, preds, "A vs B", time.Now().Add(time.Hour))
	p2 := seedPrediction(t, preds, "C vs D", time.Now().Add(2*time.Hour))

	created, err := follows.Create(ctx, 1, p1.ID)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = follows.Create(ctx, 1, p1.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = follows.Create(ctx, 1, p2.ID)
	require.NoError(t, err)
	_, err = follows.Create(ctx, 2, p1.ID)
	require.NoError(t, err)

	ids, err := follows.ListFollowerIDs(ctx, p1.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, ids)
	ids, err = follows.ListFollowerIDs(ctx, p1.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids)

	followed, err := follows.FollowedPredictionIDs(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{p1.ID, p2.ID}, followed)

	list, err := follows.ListFollowed(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p2.ID, list[0].ID, "ties on saved_at fall back to id desc")
	assert.False(t, list[0].SavedAt.IsZero())

	_, err = preds.Settle(ctx, p1.ID, model.StatusWon)
	require.NoError(t, err)
	won, err := follows.ListFollowed(ctx, 1, model.StatusWon)
	require.NoError(t, err)
	require.Len(t, won, 1)
	assert.Equal(t, "A vs B", won[0].MatchName)

	removed, err := follows.Delete(ctx, 1, p2.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = follows.Delete(ctx, 1, p2.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	ids, err = follows.FollowedPredictionIDs(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, ids, p2.ID)
}

func TestFollowRepositoryConcurrentDuplicates(t *testing.T) {
	db := setupTestDB(t)
	preds := NewPredictionRepository(db)
	follows := NewFollowRepository(db)
	p := seedPrediction(t, preds, "A vs B", time.Now().Add(time.Hour))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inserts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := follows.Create(context.Background(), 7, p.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserts)

	var cnt int64
	require.NoError(t, db.Model(&model.Follow{}).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestFollowRepositoryROI(t *testing.T) {
	db := setupTestDB(t)
	preds := NewPredictionRepository(db)
	follows := NewFollowRepository(db)
	ctx := context.Background()

	empty, err := follows.ROI(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ROIStats{}, empty)

	for i, status := range []string{model.StatusWon, model.StatusWon, model.StatusLost, model.StatusPending} {
		p := seedPrediction(t, preds, fmt.Sprintf("M%d", i), time.Now().Add(time.Hour))
		_, err := follows.Create(ctx, 1, p.ID)
		require.NoError(t, err)
		if status != model.StatusPending {
			_, err = preds.Settle(ctx, p.ID, status)
			require.NoError(t, err)
		}
	}

	s, err := follows.ROI(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, s.Followed)
	assert.EqualValues(t, 2, s.Won)
	assert.EqualValues(t, 1, s.Lost)
	assert.EqualValues(t, 1, s.Pending)
	assert.InDelta(t, 4.0, s.WonOdds, 1e-9)
}

func TestNotificationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Notification{UserID: 1, Message: "first", Type: model.NotificationNewTip}))
	batch := []model.Notification{
		{UserID: 1, Message: "second", Type: model.NotificationResult},
		{UserID: 2, Message: "other", Type: model.NotificationResult},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch, 1))
	require.NoError(t, repo.CreateBatch(ctx, nil, 10))

	list, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Message)
	assert.False(t, list[0].Read)

	ok, err := repo.MarkRead(ctx, 2, list[0].ID)
	require.NoError(t, err)
	assert.False(t, ok, "cannot mark another user's notification")

	ok, err = repo.MarkRead(ctx, 1, list[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	cnt, err := repo.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cnt)

	n, err := repo.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	cnt, err = repo.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, cnt)
}
