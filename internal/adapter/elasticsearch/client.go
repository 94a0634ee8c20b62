package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	elasticgo "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/hashicorp/go-retryablehttp"
)

// Client loads features into one Elasticsearch index.
// It implements pipeline.BatchLoader.
type Client struct {
	es       *elasticgo.Client
	index    string
	settings IndexSettings
	logger   *slog.Logger
}

// NewClient creates an index client. Retries are delegated to a
// retryablehttp transport bounded by ES_RETRY_MAX.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.ESRetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.ESTimeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logger.With("component", "elasticsearch-transport")

	es, err := elasticgo.NewClient(elasticgo.Config{
		Addresses:    []string{cfg.ESURL},
		Username:     cfg.ESUsername,
		Password:     cfg.ESPassword,
		Transport:    &retryablehttp.RoundTripper{Client: rc},
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{
		es:       es,
		index:    cfg.IndexName,
		settings: settingsFromConfig(cfg),
		logger:   logger,
	}, nil
}

// settingsFromConfig overrides the default index settings with the configured
// shard and replica counts when they are set.
func settingsFromConfig(cfg *config.Config) IndexSettings {
	s := DefaultIndexSettings()
	if cfg.IndexShards > 0 {
		s.Shards = cfg.IndexShards
	}
	if cfg.IndexReplicas > 0 {
		s.Replicas = cfg.IndexReplicas
	}
	return s
}

// Index returns the managed index name.
func (c *Client) Index() string { return c.index }

// CheckReadiness reports an error when the cluster cannot answer an index
// existence check.
func (c *Client) CheckReadiness(ctx context.Context) error {
	_, err := c.Exists(ctx)
	return err
}

// Exists reports whether the index exists.
func (c *Client) Exists(ctx context.Context) (bool, error) {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", c.index, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, responseError("check index "+c.index, res)
	}
}

// EnsureIndex creates the index with its settings when it does not exist.
// It reports whether the index was created.
func (c *Client) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := c.Exists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	body, err := json.Marshal(c.settings.Body())
	if err != nil {
		return false, fmt.Errorf("encode index settings: %w", err)
	}
	res, err := c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("create index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, responseError("create index "+c.index, res)
	}

	c.logger.Info("index created", "index", c.index, "shards", c.settings.Shards, "replicas", c.settings.Replicas)
	return true, nil
}

// DeleteIndex removes the index if it exists and reports whether it did.
func (c *Client) DeleteIndex(ctx context.Context) (bool, error) {
	exists, err := c.Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("delete index %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, responseError("delete index "+c.index, res)
	}
	return true, nil
}

// DeleteOlderThan deletes the features whose expiry is at or before cutoff and
// returns how many were removed.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"properties.expires": map[string]any{
					"lte": domain.FormatCAPTime(cutoff),
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("encode delete query: %w", err)
	}

	res, err := c.es.DeleteByQuery([]string{c.index}, bytes.NewReader(body),
		c.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query on %s: %w", c.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, responseError("delete by query on "+c.index, res)
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode delete by query response: %w", err)
	}
	return out.Deleted, nil
}

// LoadBatch upserts features in one bulk request, keyed by their identifier.
// Item-level rejections are logged; only request failures are returned.
func (c *Client) LoadBatch(ctx context.Context, features []domain.Feature) error {
	summary, err := c.Bulk(ctx, features)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		c.logger.Warn("bulk index rejected features",
			"index", c.index,
			"indexed", summary.Indexed,
			"failed", summary.Failed,
			"first_error", summary.Errors[0].Error(),
		)
	} else {
		c.logger.Debug("bulk index complete", "index", c.index, "indexed", summary.Indexed)
	}
	return nil
}

// Bulk sends one index action per feature and summarizes the item results.
func (c *Client) Bulk(ctx context.Context, features []domain.Feature) (BulkSummary, error) {
	if len(features) == 0 {
		return BulkSummary{}, nil
	}

	body, err := bulkBody(c.index, features)
	if err != nil {
		return BulkSummary{}, err
	}

	res, err := c.es.Bulk(bytes.NewReader(body),
		c.es.Bulk.WithIndex(c.index),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return BulkSummary{}, fmt.Errorf("bulk index %d features: %w", len(features), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return BulkSummary{}, responseError("bulk index", res)
	}

	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return BulkSummary{}, fmt.Errorf("decode bulk response: %w", err)
	}
	return out.summary(), nil
}

// bulkBody renders the NDJSON payload of a bulk request.
func bulkBody(index string, features []domain.Feature) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range features {
		action := map[string]any{
			"index": map[string]any{
				"_index": index,
				"_id":    features[i].Properties.Identifier,
			},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(features[i]); err != nil {
			return nil, fmt.Errorf("encode feature %s: %w", features[i].Properties.Identifier, err)
		}
	}
	return buf.Bytes(), nil
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("%s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
}
