package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmrzaf/logship/internal/domain"
)

// ElasticsearchSink ships batches to an elasticsearch index via the bulk API.
// Documents are indexed by log id, so redelivered batches overwrite instead of
// duplicating.
type ElasticsearchSink struct {
	baseURL string
	index   string
	client  *http.Client
}

func NewElasticsearchSink(dsn, index string) *ElasticsearchSink {
	if index == "" {
		index = "shipped-logs"
	}
	return &ElasticsearchSink{baseURL: normalizeURL(dsn), index: toIndexName(index)}
}

func (s *ElasticsearchSink) Connect() error {
	s.client = &http.Client{Timeout: 15 * time.Second}
	resp, err := s.client.Get(s.baseURL + "/")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elasticsearch ping failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *ElasticsearchSink) Close() error { return nil }

func (s *ElasticsearchSink) OnLogsReceived(ctx context.Context, batch []domain.LogRecord) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range batch {
		action := map[string]interface{}{"_index": s.index}
		if id := rec.ID(); id != "" {
			action["_id"] = id
		}
		if err := enc.Encode(map[string]interface{}{"index": action}); err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/_bulk", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("elasticsearch bulk insert failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	_ = json.Unmarshal(body, &bulkResp)
	if bulkResp.Errors {
		return fmt.Errorf("elasticsearch bulk insert returned errors")
	}
	return nil
}

func normalizeURL(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "http://localhost:9200"
	}
	if strings.HasPrefix(dsn, "http://") || strings.HasPrefix(dsn, "https://") {
		return strings.TrimRight(dsn, "/")
	}
	return "http://" + strings.TrimRight(dsn, "/")
}

func toIndexName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return url.PathEscape(name)
}
