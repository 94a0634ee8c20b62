package elasticsearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/cap-alerts-etl/internal/config"
	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = "cap_alerts_test"

type request struct {
	Method string
	Path   string
	Body   []byte
}

// fakeES records every request and answers with the handler's response.
type fakeES struct {
	mu       sync.Mutex
	requests []request
	respond  func(r request) (int, string)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := request{Method: r.Method, Path: r.URL.Path, Body: body}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	status, payload := f.respond(req)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, payload)
}

func (f *fakeES) recorded() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

func newTestClient(t *testing.T, respond func(r request) (int, string)) (*Client, *fakeES) {
	t.Helper()
	fake := &fakeES{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		ESURL:         srv.URL,
		ESTimeout:     5 * time.Second,
		ESRetryMax:    0,
		IndexName:     testIndex,
		IndexShards:   1,
		IndexReplicas: 0,
	}
	c, err := NewClient(cfg, slog.Default())
	require.NoError(t, err)
	return c, fake
}

func testFeature(id string) domain.Feature {
	return domain.Feature{
		Type: "Feature",
		Properties: domain.Properties{
			Identifier: id,
			Reference:  "urn:oid:2.49.0.1.124.1234567890.2030",
			Expires:    "2030-06-02T00:00:00Z",
		},
		Geometry: domain.Geometry{
			Type:        "Polygon",
			Coordinates: [][]domain.Position{{{-75, 45, 0}, {-75.1, 45.1, 0}, {-75, 45.1, 0}, {-75, 45, 0}}},
		},
	}
}

func TestExists(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{"present", http.StatusOK, true, false},
		{"absent", http.StatusNotFound, false, false},
		{"forbidden", http.StatusForbidden, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestClient(t, func(request) (int, string) { return tt.status, `{}` })

			got, err := c.Exists(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			reqs := fake.recorded()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodHead, reqs[0].Method)
			assert.Equal(t, "/"+testIndex, reqs[0].Path)
		})
	}
}

func TestCheckReadiness(t *testing.T) {
	ready, _ := newTestClient(t, func(request) (int, string) { return http.StatusNotFound, `{}` })
	require.NoError(t, ready.CheckReadiness(context.Background()), "a missing index is still a reachable cluster")

	down, _ := newTestClient(t, func(request) (int, string) { return http.StatusUnauthorized, `{}` })
	assert.Error(t, down.CheckReadiness(context.Background()))
}

func TestEnsureIndex_CreatesWhenAbsent(t *testing.T) {
	c, fake := newTestClient(t, func(r request) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusOK, `{"acknowledged":true,"index":"` + testIndex + `"}`
	})

	created, err := c.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.True(t, created)

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPut, reqs[1].Method)
	assert.Equal(t, "/"+testIndex, reqs[1].Path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[1].Body, &body))
	settings := body["settings"].(map[string]any)
	assert.InDelta(t, 1, settings["number_of_shards"], 0)
	assert.InDelta(t, 0, settings["number_of_replicas"], 0)

	mappings := body["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "geo_shape"}, mappings["geometry"])
	props := mappings["properties"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, DateFormat, props["expires"].(map[string]any)["format"])
	assert.Equal(t, "text", props["titre"].(map[string]any)["type"])
}

func TestEnsureIndex_NoopWhenPresent(t *testing.T) {
	c, fake := newTestClient(t, func(request) (int, string) { return http.StatusOK, `` })

	created, err := c.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, fake.recorded(), 1)
}

func TestEnsureIndex_CreateFails(t *testing.T) {
	c, _ := newTestClient(t, func(r request) (int, string) {
		if r.Method == http.MethodHead {
			return http.StatusNotFound, ``
		}
		return http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception"}}`
	})

	_, err := c.EnsureIndex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestDeleteIndex(t *testing.T) {
	t.Run("existing index", func(t *testing.T) {
		c, fake := newTestClient(t, func(request) (int, string) { return http.StatusOK, `{"acknowledged":true}` })

		deleted, err := c.DeleteIndex(context.Background())
		require.NoError(t, err)
		assert.True(t, deleted)

		reqs := fake.recorded()
		require.Len(t, reqs, 2)
		assert.Equal(t, http.MethodDelete, reqs[1].Method)
	})

	t.Run("missing index", func(t *testing.T) {
		c, fake := newTestClient(t, func(request) (int, string) { return http.StatusNotFound, `` })

		deleted, err := c.DeleteIndex(context.Background())
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Len(t, fake.recorded(), 1)
	})
}

func TestDeleteOlderThan(t *testing.T) {
	c, fake := newTestClient(t, func(request) (int, string) { return http.StatusOK, `{"deleted":7}` })

	cutoff := time.Date(2030, 5, 2, 9, 30, 0, 0, time.UTC)
	deleted, err := c.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/"+testIndex+"/_delete_by_query", reqs[0].Path)
	assert.JSONEq(t, `{"query":{"range":{"properties.expires":{"lte":"2030-05-02T09:30:00Z"}}}}`, string(reqs[0].Body))
}

func TestBulk(t *testing.T) {
	c, fake := newTestClient(t, func(request) (int, string) {
		return http.StatusOK, `{"errors":false,"items":[
			{"index":{"_id":"a-1","status":201}},
			{"index":{"_id":"a-2","status":200}}]}`
	})

	summary, err := c.Bulk(context.Background(), []domain.Feature{testFeature("a-1"), testFeature("a-2")})
	require.NoError(t, err)
	assert.Equal(t, BulkSummary{Indexed: 2}, summary)

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/"+testIndex+"/_bulk", reqs[0].Path)

	lines := ndjsonLines(t, reqs[0].Body)
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"`+testIndex+`","_id":"a-1"}}`, lines[0])
	assert.Contains(t, lines[1], `"identifier":"a-1"`)
	assert.Contains(t, lines[1], `"coordinates":[[[-75,45,0],[-75.1,45.1,0],[-75,45.1,0],[-75,45,0]]]`)
	assert.JSONEq(t, `{"index":{"_index":"`+testIndex+`","_id":"a-2"}}`, lines[2])
}

func TestBulk_ItemFailures(t *testing.T) {
	c, _ := newTestClient(t, func(request) (int, string) {
		return http.StatusOK, `{"errors":true,"items":[
			{"index":{"_id":"a-1","status":201}},
			{"index":{"_id":"a-2","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [geometry]"}}}]}`
	})

	summary, err := c.Bulk(context.Background(), []domain.Feature{testFeature("a-1"), testFeature("a-2")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "a-2", summary.Errors[0].ID)
	assert.Contains(t, summary.Errors[0].Error(), "mapper_parsing_exception")

	require.NoError(t, c.LoadBatch(context.Background(), []domain.Feature{testFeature("a-1"), testFeature("a-2")}))
}

func TestBulk_Empty(t *testing.T) {
	c, fake := newTestClient(t, func(request) (int, string) { return http.StatusOK, `{}` })

	require.NoError(t, c.LoadBatch(context.Background(), nil))
	assert.Empty(t, fake.recorded())
}

func TestBulk_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(request) (int, string) {
		return http.StatusServiceUnavailable, `{"error":"cluster unavailable"}`
	})

	err := c.LoadBatch(context.Background(), []domain.Feature{testFeature("a-1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestIndexSettings_Body(t *testing.T) {
	body := IndexSettings{Shards: 3, Replicas: 2}.Body()
	settings := body["settings"].(map[string]any)
	assert.Equal(t, 3, settings["number_of_shards"])
	assert.Equal(t, 2, settings["number_of_replicas"])

	props := body["mappings"].(map[string]any)["properties"].(map[string]any)["properties"].(map[string]any)["properties"].(map[string]any)
	assert.Len(t, props, len(textProperties)+2)
	for _, name := range textProperties {
		field := props[name].(map[string]any)
		assert.Equal(t, "text", field["type"], name)
		assert.Equal(t, map[string]any{"raw": map[string]any{"type": "keyword"}}, field["fields"], name)
	}
	assert.Equal(t, DefaultIndexSettings(), IndexSettings{Shards: 1})
}

func TestSettingsFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want IndexSettings
	}{
		{"unset keeps defaults", config.Config{}, DefaultIndexSettings()},
		{"configured counts", config.Config{IndexShards: 3, IndexReplicas: 2}, IndexSettings{Shards: 3, Replicas: 2}},
		{"replicas only", config.Config{IndexReplicas: 1}, IndexSettings{Shards: 1, Replicas: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, settingsFromConfig(&tt.cfg))
		})
	}
}

func ndjsonLines(t *testing.T, body []byte) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	require.NoError(t, sc.Err())
	return lines
}
