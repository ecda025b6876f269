package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"cloudops-agent/internal/models"
)

const DefaultIndex = "user_interactions"

// IndexMapping is applied when the mirror index is created.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":                 {"type": "long"},
      "timestamp":          {"type": "date"},
      "user_message":       {"type": "text"},
      "detected_intent":    {"type": "keyword"},
      "entities":           {"type": "object", "enabled": false},
      "system_response":    {"type": "text"},
      "operation_executed": {"type": "keyword"},
      "operation_result":   {"type": "object", "enabled": false}
    }
  }
}`

// ElasticsearchStore indexes records for full-text search over user messages.
// It is used as a mirror of the primary store, keyed by the primary's id.
type ElasticsearchStore struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchStore(client *elasticsearch.Client, index string) *ElasticsearchStore {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchStore{client: client, index: index}
}

func (s *ElasticsearchStore) Append(ctx context.Context, rec *models.InteractionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	req := esapi.IndexRequest{
		Index:   s.index,
		Body:    bytes.NewReader(body),
		Refresh: "false",
	}
	if rec.ID > 0 {
		req.DocumentID = strconv.FormatInt(rec.ID, 10)
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index interaction: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index interaction failed: %s", res.String())
	}
	return nil
}

func (s *ElasticsearchStore) List(ctx context.Context, limit int) ([]models.InteractionRecord, error) {
	return s.search(ctx, map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"sort":  []interface{}{map[string]interface{}{"id": map[string]interface{}{"order": "desc"}}},
		"size":  limit,
	})
}

// Search returns records whose user message matches text, best match first.
func (s *ElasticsearchStore) Search(ctx context.Context, text string, limit int) ([]models.InteractionRecord, error) {
	return s.search(ctx, map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"user_message": map[string]interface{}{"query": text},
			},
		},
		"size": limit,
	})
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.InteractionRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchStore) search(ctx context.Context, query map[string]interface{}) ([]models.InteractionRecord, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search interactions: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search interactions failed: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]models.InteractionRecord, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}
