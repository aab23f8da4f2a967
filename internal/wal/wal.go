// Package wal is an append-only spool for audit entries the database could not
// accept. Entries are replayed into the audit table on the next startup.
package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WAL manages the audit spool file
type WAL struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// NewWAL opens (or creates) the spool file
func NewWAL(filePath string) (*WAL, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		filePath: filePath,
		file:     file,
	}, nil
}

// Write appends an audit entry and syncs it to disk
func (w *WAL) Write(entry models.AuditLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Log.Error("WAL: Failed to marshal audit entry",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return err
	}

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("WAL: Failed to write to file",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return err
	}

	if err := w.file.Sync(); err != nil {
		logger.Log.Error("WAL: Failed to sync to disk",
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Debug("WAL: Audit entry spooled",
		zap.String("id", entry.ID.String()),
		zap.String("action", string(entry.Action)),
	)
	return nil
}

// ReadAll reads every spooled entry; malformed lines are skipped
func (w *WAL) ReadAll() ([]models.AuditLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readAllUnsafe()
}

// Cleanup removes entries that have been replayed into the database
func (w *WAL) Cleanup(persistedIDs []uuid.UUID) error {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	allEntries, err := w.readAllUnsafe()
	if err != nil {
		logger.Log.Error("WAL: Failed to read entries for cleanup", zap.Error(err))
		return err
	}

	persisted := make(map[uuid.UUID]bool, len(persistedIDs))
	for _, id := range persistedIDs {
		persisted[id] = true
	}

	var remaining []models.AuditLog
	for _, entry := range allEntries {
		if !persisted[entry.ID] {
			remaining = append(remaining, entry)
		}
	}

	if err := w.file.Close(); err != nil {
		logger.Log.Error("WAL: Failed to close file for cleanup", zap.Error(err))
		return err
	}

	tempFile := w.filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		logger.Log.Error("WAL: Failed to create temp file",
			zap.String("temp_file", tempFile),
			zap.Error(err),
		)
		return err
	}

	bw := bufio.NewWriter(f)
	for _, entry := range remaining {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		bw.Write(append(data, '\n'))
	}
	bw.Flush()
	f.Sync()
	f.Close()

	if err := os.Rename(tempFile, w.filePath); err != nil {
		logger.Log.Error("WAL: Failed to rename temp file",
			zap.String("temp_file", tempFile),
			zap.String("target_file", w.filePath),
			zap.Error(err),
		)
		return err
	}

	// Reopen with the same flags, later writes must keep appending
	newFile, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		logger.Log.Error("WAL: Failed to reopen file after cleanup",
			zap.String("file_path", w.filePath),
			zap.Error(err),
		)
		return err
	}
	w.file = newFile

	logger.Log.Info("WAL: Cleanup completed",
		zap.Int("before_count", len(allEntries)),
		zap.Int("removed_count", len(allEntries)-len(remaining)),
		zap.Int("remaining_count", len(remaining)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (w *WAL) readAllUnsafe() ([]models.AuditLog, error) {
	file, err := os.Open(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.AuditLog{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []models.AuditLog
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var entry models.AuditLog
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the spool file
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
