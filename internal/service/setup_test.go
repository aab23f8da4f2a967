package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Baaaki/component-review/internal/broker"
	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/internal/search"
	"github.com/Baaaki/component-review/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingIndexer remembers which components were indexed or removed
type recordingIndexer struct {
	mu      sync.Mutex
	indexed []uuid.UUID
	deleted []string
}

var _ search.Indexer = (*recordingIndexer)(nil)

func (r *recordingIndexer) IndexComponent(c *models.Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, c.ID)
	return nil
}

func (r *recordingIndexer) DeleteComponent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *recordingIndexer) Indexed() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.indexed...)
}

func (r *recordingIndexer) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

// afterFirstQuery runs fn once, right after the first query against table
// completes, on the connection (or transaction) that query used.
func afterFirstQuery(t *testing.T, db *gorm.DB, table string, fn func(tx *gorm.DB)) {
	t.Helper()
	var once sync.Once
	err := db.Callback().Query().After("gorm:query").Register("test:after_query_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		once.Do(func() { fn(tx) })
	})
	require.NoError(t, err)
}

// memorySpool keeps spooled audit rows in memory
type memorySpool struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *memorySpool) Write(entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySpool) ReadAll() ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.entries...), nil
}

func (s *memorySpool) Cleanup(ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	kept := s.entries[:0]
	for _, e := range s.entries {
		if _, ok := done[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *memorySpool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// recordingBroker remembers every published event
type recordingBroker struct {
	broker.NoopBroker
	mu        sync.Mutex
	published map[uuid.UUID][]broker.Event
}

func (b *recordingBroker) Publish(ctx context.Context, recipientID uuid.UUID, event broker.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[uuid.UUID][]broker.Event)
	}
	b.published[recipientID] = append(b.published[recipientID], event)
	return nil
}

func (b *recordingBroker) For(recipientID uuid.UUID) []broker.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[recipientID]
}

// recordingMailer captures reset links instead of sending them
type recordingMailer struct {
	mu   sync.Mutex
	urls []string
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, user *models.User, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, resetURL)
	return nil
}

func (m *recordingMailer) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.urls) == 0 {
		return ""
	}
	return m.urls[len(m.urls)-1]
}

const testJWTSecret = "test-secret-key"

// testEnv wires every service over one private database
type testEnv struct {
	db      *gorm.DB
	spool   *memorySpool
	broker  *recordingBroker
	mailer  *recordingMailer
	indexer *recordingIndexer
	metrics *metrics.Metrics

	users         *repository.UserRepository
	components    *repository.ComponentRepository
	reviews       *repository.ReviewRepository
	notifications *repository.NotificationRepository
	resets        *repository.PasswordResetRepository
	audits        *repository.AuditRepository

	recorder     *AuditRecorder
	notifier     *Notifier
	auth         *AuthService
	componentSvc *ComponentService
	reviewSvc    *ReviewService
	notifSvc     *NotificationService
	userSvc      *UserService
	auditSvc     *AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testDB := testutil.SetupTestDatabase(t)
	t.Cleanup(func() { testDB.Teardown(t) })

	e := &testEnv{
		db:      testDB.DB,
		spool:   &memorySpool{},
		broker:  &recordingBroker{},
		mailer:  &recordingMailer{},
		indexer: &recordingIndexer{},
		metrics: metrics.New(),
	}

	e.users = repository.NewUserRepository(e.db)
	e.components = repository.NewComponentRepository(e.db)
	e.reviews = repository.NewReviewRepository(e.db)
	e.notifications = repository.NewNotificationRepository(e.db)
	e.resets = repository.NewPasswordResetRepository(e.db)
	e.audits = repository.NewAuditRepository(e.db)

	e.recorder = NewAuditRecorder(e.audits, e.spool, e.metrics)
	e.notifier = NewNotifier(e.users, e.notifications, e.broker, e.metrics)
	e.auth = NewAuthService(e.db, e.users, e.resets, e.recorder, e.mailer,
		testJWTSecret, time.Hour, time.Hour, "http://localhost:3000")
	e.componentSvc = NewComponentService(e.db, e.components, e.reviews, e.notifications, e.recorder, e.notifier, e.indexer, e.metrics)
	e.reviewSvc = NewReviewService(e.reviews, e.components, e.notifier)
	e.notifSvc = NewNotificationService(e.notifications, e.broker)
	e.userSvc = NewUserService(e.db, e.users, e.components, e.reviews, e.notifications, e.resets, e.audits, e.recorder, e.indexer)
	e.auditSvc = NewAuditService(e.db, e.audits, e.recorder)
	return e
}

func (e *testEnv) user(t *testing.T, username string, role models.Role) *models.User {
	return testutil.CreateUser(t, e.db, username, role)
}

func (e *testEnv) component(t *testing.T, owner *models.User, name string, status models.ComponentStatus) *models.Component {
	return testutil.CreateComponent(t, e.db, owner, name, status)
}

func (e *testEnv) countNotifications(t *testing.T, recipient uuid.UUID, verb models.NotificationVerb) int64 {
	t.Helper()
	n, err := e.notifications.CountByRecipientAndVerb(recipient, verb)
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return n
}

func (e *testEnv) auditRows(t *testing.T, action models.AuditAction) []models.AuditLog {
	t.Helper()
	var rows []models.AuditLog
	if err := e.db.Where("action = ?", action).Order("timestamp ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load audit rows: %v", err)
	}
	return rows
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *models.Component {
	t.Helper()
	c, err := e.components.GetByID(id)
	if err != nil {
		t.Fatalf("reload component: %v", err)
	}
	return c
}

var testMeta = RequestMeta{IP: "203.0.113.7", UserAgent: "service-test"}
