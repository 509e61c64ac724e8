package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/voyplan/memory-backend/internal/logger"
)

const maxErrorBodyBytes = 1024

// Point is one vector with its payload, keyed by a uuid string.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchHit is one similarity match with its payload attached.
type SearchHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// CollectionInfo summarizes the collection for diagnostics.
type CollectionInfo struct {
	PointsCount int64
	VectorSize  int
	Distance    string
}

// Client is the vector index capability consumed by the inter-session store
// and the embedding worker.
type Client interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	// Search runs a filtered similarity query. userID is mandatory: every
	// query is scoped to one user's points.
	Search(ctx context.Context, vector []float32, userID string, limit int, scoreThreshold float64) ([]SearchHit, error)
	Info(ctx context.Context) (CollectionInfo, error)
}

// Options configures the HTTP client.
type Options struct {
	BaseURL    string
	APIKey     string
	Collection string
	VectorDim  int
	Timeout    time.Duration
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	collection string
	vectorDim  int
	http       *http.Client
}

func NewClient(log *logger.Logger, opts Options) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("qdrant base URL required")
	}
	if strings.TrimSpace(opts.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection required")
	}
	if opts.VectorDim <= 0 {
		return nil, fmt.Errorf("qdrant vector dim must be positive, got %d", opts.VectorDim)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &client{
		log:        log.With("service", "QdrantClient"),
		baseURL:    base,
		apiKey:     strings.TrimSpace(opts.APIKey),
		collection: opts.Collection,
		vectorDim:  opts.VectorDim,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// EnsureCollection creates the collection only when the lookup reports
// not-found. Any other lookup status is treated as "collection exists" so a
// transient error cannot race us into a conflicting create.
func (c *client) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"
	err := c.doJSON(ctx, op, http.MethodGet, c.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		var opErrTyped *OperationError
		if errors.As(err, &opErrTyped) && opErrTyped.Code == OperationErrorQueryFailed {
			// Server answered with a non-404 status; treat as exists rather
			// than risk a conflicting create.
			c.log.Warn("collection lookup failed, skipping create", "collection", c.collection, "error", err)
			return nil
		}
		return err
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorDim,
			"distance": "Cosine",
		},
	}
	if err := c.doJSON(ctx, op, http.MethodPut, c.collectionPath(""), req, nil); err != nil {
		return err
	}
	c.log.Info("created qdrant collection", "collection", c.collection, "dim", c.vectorDim)
	return nil
}

func (c *client) Upsert(ctx context.Context, points []Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, 0, len(points))
	for _, p := range points {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "point id is required", nil)
		}
		if len(p.Vector) != c.vectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("point %q dimension mismatch: expected=%d got=%d", id, c.vectorDim, len(p.Vector)), nil)
		}
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		body = append(body, map[string]any{
			"id":      id,
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	req := map[string]any{"points": body}
	return c.doJSON(ctx, op, http.MethodPut, c.collectionPath("/points?wait=true"), req, nil)
}

func (c *client) Search(ctx context.Context, vector []float32, userID string, limit int, scoreThreshold float64) ([]SearchHit, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if len(vector) != c.vectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", c.vectorDim, len(vector)), nil)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, opErr(op, OperationErrorValidation, "user_id filter required", nil)
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
		"filter": map[string]any{
			"must": []any{
				map[string]any{
					"key":   "user_id",
					"match": map[string]any{"value": userID},
				},
			},
		},
	}
	// A zero threshold is a real value: it still excludes negative-score
	// hits, so forward it rather than dropping the field.
	if scoreThreshold >= 0 {
		req["score_threshold"] = scoreThreshold
	}

	var raw []searchResultItem
	if err := c.doJSON(ctx, op, http.MethodPost, c.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]SearchHit, 0, len(raw))
	for _, item := range raw {
		out = append(out, SearchHit{
			ID:      decodePointID(item.ID),
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return out, nil
}

func (c *client) Info(ctx context.Context) (CollectionInfo, error) {
	const op = "collection_info"
	var result struct {
		PointsCount int64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := c.doJSON(ctx, op, http.MethodGet, c.collectionPath(""), nil, &result); err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{
		PointsCount: result.PointsCount,
		VectorSize:  result.Config.Params.Vectors.Size,
		Distance:    result.Config.Params.Vectors.Distance,
	}, nil
}

func (c *client) collectionPath(suffix string) string {
	path := "/collections/" + c.collection
	if suffix == "" {
		return path
	}
	return path + suffix
}

func (c *client) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{
			Code:       OperationErrorNotFound,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=404 body=%q", truncateBody(raw)),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(env.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
