package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/infrastructure/resilience"
)

const serviceName = "qdrant"

// Client is a VectorIndex backed by a Qdrant collection. Point IDs are metadata
// positions, so search hits map straight back to the metadata store.
type Client struct {
	baseURL    string
	collection string
	dimension  int
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool

	sizeMu sync.RWMutex
	size   int
}

func New(baseURL, collection string, dimension int, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Dimension() int {
	return c.dimension
}

// Size returns the point count observed by the last Sync or Upsert.
func (c *Client) Size() int {
	c.sizeMu.RLock()
	defer c.sizeMu.RUnlock()
	return c.size
}

func (c *Client) setSize(n int) {
	c.sizeMu.Lock()
	defer c.sizeMu.Unlock()
	c.size = n
}

// Sync reads the collection's vector size and point count. A vector size different
// from the configured dimension is a configuration error.
func (c *Client) Sync(ctx context.Context) error {
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	if err := c.call(ctx, http.MethodGet, url, nil, &info, "info"); err != nil {
		return err
	}
	if size := info.Result.Config.Params.Vectors.Size; size != c.dimension {
		return domain.WrapError(domain.ErrConfiguration, "qdrant sync",
			fmt.Errorf("collection %s has vector size %d, expected %d", c.collection, size, c.dimension))
	}
	c.setSize(info.Result.PointsCount)
	return nil
}

// Upsert writes vectors at positions start, start+1, ...
func (c *Client) Upsert(ctx context.Context, start int, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != c.dimension {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert",
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), c.dimension))
		}
	}
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	type point struct {
		ID      int            `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(vectors))
	for i, v := range vectors {
		points = append(points, point{
			ID:      start + i,
			Vector:  v,
			Payload: map[string]any{"position": start + i},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.call(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert"); err != nil {
		return err
	}
	if end := start + len(vectors); end > c.Size() {
		c.setSize(end)
	}
	return nil
}

// Prune deletes every point at position keep or beyond, so a rebuild from a smaller
// corpus leaves the collection aligned with the new metadata.
func (c *Client) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant prune", fmt.Errorf("negative keep %d", keep))
	}
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   "position",
					"range": map[string]any{"gte": keep},
				},
			},
		},
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	if err := c.call(ctx, http.MethodPost, url, reqBody, nil, "prune"); err != nil {
		return err
	}
	c.setSize(keep)
	return nil
}

func (c *Client) Search(ctx context.Context, vector []float32, k int) ([]domain.IndexHit, error) {
	if len(vector) != c.dimension {
		return nil, domain.WrapError(domain.ErrConfiguration, "qdrant search",
			fmt.Errorf("query dimension %d, expected %d", len(vector), c.dimension))
	}
	if k <= 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.call(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.IndexHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		pos, ok := position(r.Payload, r.ID)
		if !ok {
			continue
		}
		out = append(out, domain.IndexHit{Position: pos, Distance: r.Score})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimension,
			"distance": "Euclid",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.call(ctx, http.MethodPut, url, reqBody, nil, "ensure collection")
	if err != nil && !isConflict(err) {
		return err
	}
	c.ensuredCollection = true
	return nil
}

func (c *Client) call(ctx context.Context, method, url string, payload any, out any, operation string) error {
	if c.executor == nil {
		return c.do(ctx, method, url, payload, out, operation)
	}
	err := c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), func(callCtx context.Context) error {
		return c.do(callCtx, method, url, payload, out, operation)
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err, resilience.ClassifyHTTPError)
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any, operation string) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError(serviceName, operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// position prefers the payload field and falls back to a numeric point ID.
func position(payload map[string]any, id any) (int, bool) {
	if v, ok := payload["position"]; ok {
		if n, ok := v.(float64); ok {
			return int(n), true
		}
	}
	if n, ok := id.(float64); ok {
		return int(n), true
	}
	return 0, false
}
