// Package search mirrors approved components into a Meilisearch index.
package search

import (
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const componentsIndex = "components"

// Indexer keeps the public catalog search in sync. Callers treat every
// error as non-fatal.
type Indexer interface {
	IndexComponent(component *models.Component) error
	DeleteComponent(id string) error
}

type componentDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Owner       string `json:"owner"`
	CreatedAt   int64  `json:"created_at"`
}

type meiliIndexer struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
}

func NewMeiliIndexer(client meilisearch.ServiceManager) Indexer {
	s := &meiliIndexer{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
	}
	s.initIndex()
	return s
}

// NewFromConfig returns a no-op indexer when host is empty
func NewFromConfig(host, apiKey string) Indexer {
	if host == "" {
		logger.Log.Info("Meilisearch not configured, catalog search indexing disabled")
		return NoopIndexer{}
	}
	return NewMeiliIndexer(meilisearch.New(host, meilisearch.WithAPIKey(apiKey)))
}

func (s *meiliIndexer) initIndex() {
	filterable := []string{"category"}
	filterableInterface := make([]any, len(filterable))
	for i, v := range filterable {
		filterableInterface[i] = v
	}
	if _, err := s.client.Index(componentsIndex).UpdateFilterableAttributes(&filterableInterface); err != nil {
		logger.Log.Warn("Failed to update components filterable attributes", zap.Error(err))
	}

	sortable := []string{"created_at"}
	if _, err := s.client.Index(componentsIndex).UpdateSortableAttributes(&sortable); err != nil {
		logger.Log.Warn("Failed to update components sortable attributes", zap.Error(err))
	}
}

func (s *meiliIndexer) IndexComponent(component *models.Component) error {
	doc := componentDoc{
		ID:          component.ID.String(),
		Name:        component.Name,
		Description: s.sanitizer.Sanitize(component.Description),
		Category:    string(component.Category),
		CreatedAt:   component.CreatedAt.Unix(),
	}
	if component.Owner != nil {
		doc.Owner = component.Owner.Username
	}

	task, err := s.client.Index(componentsIndex).AddDocuments([]componentDoc{doc}, strPtr("id"))
	if err != nil {
		return err
	}
	logger.Log.Debug("Indexed component",
		zap.String("component_id", doc.ID),
		zap.Int64("task_uid", task.TaskUID),
	)
	return nil
}

func (s *meiliIndexer) DeleteComponent(id string) error {
	_, err := s.client.Index(componentsIndex).DeleteDocument(id)
	return err
}

// NoopIndexer is used when search is not configured
type NoopIndexer struct{}

func (NoopIndexer) IndexComponent(*models.Component) error { return nil }
func (NoopIndexer) DeleteComponent(string) error           { return nil }

func strPtr(s string) *string {
	return &s
}
