// Package index maintains a local full-text index over the broker's tool
// catalog so tools can be searched by name and description offline.
package index

import (
	"fmt"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/gateway"
)

// ToolIndex wraps Bleve index operations over tool descriptors.
type ToolIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// toolDocument is the indexed representation of one tool.
type toolDocument struct {
	ToolName    string `json:"tool_name"`
	Description string `json:"description"`
	SchemaJSON  string `json:"schema_json"`
}

// SearchResult is one search hit with its relevance score.
type SearchResult struct {
	Tool  gateway.ToolDescriptor `json:"tool"`
	Score float64                `json:"score"`
}

// NewToolIndex opens the index under dataDir, creating it on first use.
func NewToolIndex(dataDir string, logger *zap.Logger) (*ToolIndex, error) {
	indexPath := filepath.Join(dataDir, "tools.bleve")

	idx, err := bleve.Open(indexPath)
	if err != nil {
		logger.Info("Creating new tool index", zap.String("path", indexPath))
		idx, err = createToolIndex(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create tool index: %w", err)
		}
	} else {
		logger.Info("Opened existing tool index", zap.String("path", indexPath))
	}

	return &ToolIndex{
		index:  idx,
		logger: logger,
	}, nil
}

func createToolIndex(indexPath string) (bleve.Index, error) {
	indexMapping := bleve.NewIndexMapping()

	toolMapping := bleve.NewDocumentMapping()

	// Tool name gets exact-match treatment.
	toolNameField := bleve.NewTextFieldMapping()
	toolNameField.Analyzer = keyword.Name
	toolNameField.Store = true
	toolNameField.Index = true
	toolMapping.AddFieldMappingsAt("tool_name", toolNameField)

	descriptionField := bleve.NewTextFieldMapping()
	descriptionField.Analyzer = standard.Name
	descriptionField.Store = true
	descriptionField.Index = true
	toolMapping.AddFieldMappingsAt("description", descriptionField)

	schemaField := bleve.NewTextFieldMapping()
	schemaField.Analyzer = standard.Name
	schemaField.Store = true
	schemaField.Index = true
	toolMapping.AddFieldMappingsAt("schema_json", schemaField)

	indexMapping.AddDocumentMapping("tool", toolMapping)
	indexMapping.DefaultMapping = toolMapping

	return bleve.New(indexPath, indexMapping)
}

// Close closes the index.
func (t *ToolIndex) Close() error {
	return t.index.Close()
}

// ReplaceCatalog reindexes the full tool catalog in one batch, removing
// tools that disappeared from the broker.
func (t *ToolIndex) ReplaceCatalog(tools []gateway.ToolDescriptor) error {
	existing, err := t.allDocIDs()
	if err != nil {
		return fmt.Errorf("failed to enumerate indexed tools: %w", err)
	}

	batch := t.index.NewBatch()
	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		seen[tool.Name] = true
		batch.Index(tool.Name, &toolDocument{
			ToolName:    tool.Name,
			Description: tool.Description,
			SchemaJSON:  string(tool.InputSchema),
		})
	}
	for _, id := range existing {
		if !seen[id] {
			batch.Delete(id)
		}
	}

	t.logger.Debug("Replacing tool catalog", zap.Int("count", len(tools)))
	return t.index.Batch(batch)
}

// Search runs a full-text query over the catalog with BM25 scoring.
func (t *ToolIndex) Search(query string, limit int) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	matchQuery := bleve.NewMatchQuery(query)
	searchReq := bleve.NewSearchRequest(matchQuery)
	searchReq.Size = limit
	searchReq.Fields = []string{"tool_name", "description", "schema_json"}

	t.logger.Debug("Searching tools", zap.String("query", query), zap.Int("limit", limit))

	searchResult, err := t.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var results []SearchResult
	for _, hit := range searchResult.Hits {
		results = append(results, SearchResult{
			Tool: gateway.ToolDescriptor{
				Name:        getStringField(hit.Fields, "tool_name"),
				Description: getStringField(hit.Fields, "description"),
				InputSchema: []byte(getStringField(hit.Fields, "schema_json")),
			},
			Score: hit.Score,
		})
	}

	return results, nil
}

// DocumentCount returns the number of indexed tools.
func (t *ToolIndex) DocumentCount() (uint64, error) {
	return t.index.DocCount()
}

func (t *ToolIndex) allDocIDs() ([]string, error) {
	searchReq := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	searchReq.Size = 10000
	searchResult, err := t.index.Search(searchReq)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func getStringField(fields map[string]interface{}, fieldName string) string {
	if val, ok := fields[fieldName]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return ""
}
