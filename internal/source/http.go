package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmrzaf/logship/internal/domain"
)

// HTTPSource pulls pages from a cursor-paginated log API:
// GET {base}/api/v1/logs?from=<checkpoint>&take=<limit>&types=a,b,c
// The cursor for the next page is the log id of the last record returned.
type HTTPSource struct {
	cursor
	baseURL string
	token   string
	types   []string
	client  *http.Client
	closed  bool
}

func NewHTTPSource(cfg Config) *HTTPSource {
	return &HTTPSource{
		cursor:  newCursor(cfg.Checkpoint),
		baseURL: normalizeURL(cfg.Domain),
		token:   cfg.Token,
		types:   cfg.Types,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSource) Next(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	if s.closed {
		return nil, nil
	}
	if limit <= 0 {
		return nil, fmt.Errorf("page limit must be positive, got %d", limit)
	}

	query := url.Values{}
	query.Set("take", strconv.Itoa(limit))
	if s.last != "" {
		query.Set("from", s.last)
	}
	if len(s.types) > 0 {
		query.Set("types", strings.Join(s.types, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/logs?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("log api returned status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []domain.LogRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode log page: %w", err)
	}

	s.advance(records)
	return records, nil
}

// Close terminates the stream early; subsequent Next calls report end of
// stream without touching the network.
func (s *HTTPSource) Close() {
	s.closed = true
}

func normalizeURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "http://localhost:8089"
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return strings.TrimRight(domain, "/")
	}
	return "https://" + strings.TrimRight(domain, "/")
}
