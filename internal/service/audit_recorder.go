package service

import (
	"time"

	"github.com/Baaaki/component-review/internal/metrics"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/repository"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditSpool receives entries the database refused
type AuditSpool interface {
	Write(entry models.AuditLog) error
	ReadAll() ([]models.AuditLog, error)
	Cleanup(persistedIDs []uuid.UUID) error
}

// AuditEntry describes one sensitive action. A nil Actor means the system acted.
type AuditEntry struct {
	Action      models.AuditAction
	Actor       *models.User
	TargetUser  *uuid.UUID
	TargetModel string
	TargetID    string
	Description string
	Changes     map[string]interface{}
	Severity    models.Severity
	Meta        RequestMeta
}

// AuditRecorder appends audit rows. Record never fails the caller: a write the
// database rejects is spooled to disk and replayed on the next start.
type AuditRecorder struct {
	repo    *repository.AuditRepository
	spool   AuditSpool
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditRecorder(repo *repository.AuditRepository, spool AuditSpool, m *metrics.Metrics) *AuditRecorder {
	return &AuditRecorder{
		repo:    repo,
		spool:   spool,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record writes the entry on its own connection
func (r *AuditRecorder) Record(entry AuditEntry) {
	row := r.toModel(entry)
	if err := r.repo.Create(&row); err != nil {
		r.fallback(row, err)
		return
	}
	r.count(metrics.AuditStored)
}

// AuditTx collects the audit rows of one database transaction. Rows the
// transaction could not store are held until Settle learns whether the
// mutation they describe committed.
type AuditTx struct {
	recorder *AuditRecorder
	stored   int
	failed   []failedAudit
}

type failedAudit struct {
	row   models.AuditLog
	cause error
}

// Begin starts collecting audit rows for one transaction
func (r *AuditRecorder) Begin() *AuditTx {
	return &AuditTx{recorder: r}
}

// Record writes the entry inside tx so it commits or rolls back with the
// audited mutation. The insert runs under a savepoint; if it fails, only the
// savepoint is rolled back and tx stays usable.
func (a *AuditTx) Record(tx *gorm.DB, entry AuditEntry) {
	row := a.recorder.toModel(entry)

	if err := tx.SavePoint("audit").Error; err != nil {
		a.failed = append(a.failed, failedAudit{row: row, cause: err})
		return
	}
	if err := a.recorder.repo.WithTx(tx).Create(&row); err != nil {
		if rbErr := tx.RollbackTo("audit").Error; rbErr != nil {
			logger.Named("audit").Error("Failed to roll back audit savepoint", zap.Error(rbErr))
		}
		a.failed = append(a.failed, failedAudit{row: row, cause: err})
		return
	}
	a.stored++
}

// Settle takes the transaction's outcome. After a commit (txErr nil) the rows
// the transaction could not store are spooled; after a rollback every row is
// discarded, since the mutation it describes never happened.
func (a *AuditTx) Settle(txErr error) {
	defer func() {
		a.stored = 0
		a.failed = nil
	}()

	if txErr != nil {
		if len(a.failed) > 0 {
			logger.Named("audit").Debug("Discarding audit entries of a rolled back transaction",
				zap.Int("entries", len(a.failed)),
				zap.Error(txErr),
			)
		}
		return
	}
	for i := 0; i < a.stored; i++ {
		a.recorder.count(metrics.AuditStored)
	}
	for _, f := range a.failed {
		a.recorder.fallback(f.row, f.cause)
	}
}

// ReplaySpool moves spooled entries into the database. Entries already present
// (same id) are treated as persisted.
func (r *AuditRecorder) ReplaySpool() (int, error) {
	if r.spool == nil {
		return 0, nil
	}

	entries, err := r.spool.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var persisted []uuid.UUID
	for i := range entries {
		entry := entries[i]
		exists, err := r.repo.Exists(entry.ID)
		if err != nil {
			logger.Named("audit").Warn("Spool replay lookup failed", zap.String("id", entry.ID.String()), zap.Error(err))
			continue
		}
		if !exists {
			if err := r.repo.Create(&entry); err != nil {
				logger.Named("audit").Warn("Spool replay insert failed", zap.String("id", entry.ID.String()), zap.Error(err))
				continue
			}
		}
		persisted = append(persisted, entry.ID)
	}

	if len(persisted) > 0 {
		if err := r.spool.Cleanup(persisted); err != nil {
			return len(persisted), err
		}
	}

	logger.Named("audit").Info("Audit spool replayed",
		zap.Int("spooled", len(entries)),
		zap.Int("replayed", len(persisted)),
	)
	return len(persisted), nil
}

func (r *AuditRecorder) toModel(entry AuditEntry) models.AuditLog {
	row := models.AuditLog{
		ID:           uuid.New(),
		Action:       entry.Action,
		TargetUserID: entry.TargetUser,
		Description:  entry.Description,
		UserAgent:    entry.Meta.UserAgent,
		Severity:     entry.Severity,
		Timestamp:    r.now(),
	}
	if entry.Actor != nil {
		id := entry.Actor.ID
		row.ActorID = &id
	}
	if entry.TargetModel != "" {
		model := entry.TargetModel
		row.TargetModel = &model
	}
	if entry.TargetID != "" {
		id := entry.TargetID
		row.TargetID = &id
	}
	if entry.Meta.IP != "" {
		ip := entry.Meta.IP
		row.IPAddress = &ip
	}
	if entry.Changes != nil {
		row.Changes = datatypes.JSONMap(entry.Changes)
	}
	if row.Severity == "" {
		row.Severity = models.SeverityInfo
	}
	return row
}

func (r *AuditRecorder) fallback(row models.AuditLog, cause error) {
	log := logger.Named("audit")
	log.Warn("Audit write failed, spooling entry",
		zap.String("id", row.ID.String()),
		zap.String("action", string(row.Action)),
		zap.Error(cause),
	)

	if r.spool == nil {
		r.count(metrics.AuditDropped)
		log.Error("Audit entry dropped, no spool configured", zap.String("action", string(row.Action)))
		return
	}
	if err := r.spool.Write(row); err != nil {
		r.count(metrics.AuditDropped)
		log.Error("Audit entry dropped",
			zap.String("action", string(row.Action)),
			zap.Error(err),
		)
		return
	}
	r.count(metrics.AuditSpooled)
}

func (r *AuditRecorder) count(outcome string) {
	if r.metrics != nil {
		r.metrics.AuditWrites.WithLabelValues(outcome).Inc()
	}
}
