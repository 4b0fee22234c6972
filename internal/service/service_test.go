package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/vertex-tips/config"
	"github.com/d60-Lab/vertex-tips/internal/repository"
	"github.com/d60-Lab/vertex-tips/pkg/auth"
	"github.com/d60-Lab/vertex-tips/pkg/database"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []SettledEvent
}

func (p *recordingPublisher) PublishSettled(_ context.Context, ev SettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []SettledEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SettledEvent(nil), p.events...)
}

type fixture struct {
	db            *gorm.DB
	users         repository.UserRepository
	predictions   repository.PredictionRepository
	follows       repository.FollowRepository
	notifications repository.NotificationRepository
	publisher     *recordingPublisher
	notifier      *Notifier
	tokens        *auth.TokenManager
	auth          AuthService
	preds         PredictionService
	notes         NotificationService
	userSvc       UserService
}

func newFixture(t *testing.T, notifierCfg config.NotifierConfig) *fixture {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:            db,
		users:         repository.NewUserRepository(db),
		predictions:   repository.NewPredictionRepository(db),
		follows:       repository.NewFollowRepository(db),
		notifications: repository.NewNotificationRepository(db),
		publisher:     &recordingPublisher{},
		tokens:        auth.NewTokenManager("test-secret", time.Hour, "vertex-test"),
	}
	f.notifier = NewNotifier(f.follows, f.notifications, f.publisher, notifierCfg)
	f.notifier.Start()
	f.auth = NewAuthService(f.users, f.tokens, nil)
	f.preds = NewPredictionService(f.predictions, f.follows, f.notifier)
	f.notes = NewNotificationService(f.notifications)
	f.userSvc = NewUserService(f.users)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.notifier.Stop(ctx)
		_ = database.Close(db)
	})
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.notifier.Flush(ctx))
}

func (f *fixture) createPrediction(t *testing.T, match, date string) uint {
	t.Helper()
	p, err := f.preds.Create(context.Background(), CreatePredictionInput{
		Match: match, Sport: "soccer", Odds: "1.8", Date: date, Tipster: "X",
	}, 0)
	require.NoError(t, err)
	return p.ID
}
