package ords

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"chequeo/internal/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/ords/admin/", time.Second, 0, 2)
}

func TestClient_Get(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ords/admin/ce_evaluacion/7", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Content-Type"), "no body, no content type")
		w.Write([]byte(`{"id_evaluacion":7,"id_version":3,"links":[{"rel":"self"}]}`))
	})

	r, err := c.Get(context.Background(), record.Evaluations, 7)
	require.NoError(t, err)
	assert.Equal(t, record.Record{"id_evaluacion": 7.0, "id_version": 3.0}, r)
}

func TestClient_GetNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), record.Evaluations, 7)
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestClient_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("database down"))
	})

	_, err := c.List(context.Background(), record.Rules, nil)
	var storeErr *record.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, http.StatusServiceUnavailable, storeErr.Status)
	assert.Equal(t, "list", storeErr.Op)
	assert.Contains(t, storeErr.Error(), "database down")
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(srv.URL, time.Second, 0, 0)

	_, err := c.Get(context.Background(), record.Rules, 1)
	var storeErr *record.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Zero(t, storeErr.Status)
}

func TestClient_ListPaginatesWithFilter(t *testing.T) {
	rows := []map[string]any{
		{"id_respuesta": 1, "id_evaluacion": 5},
		{"id_respuesta": 2, "id_evaluacion": 5},
		{"id_respuesta": 3, "id_evaluacion": 5},
	}
	var (
		mu      sync.Mutex
		offsets []string
	)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ords/admin/ce_respuesta/", r.URL.Path)
		assert.JSONEq(t, `{"id_evaluacion":5}`, r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("offset"))
		mu.Unlock()
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := min(offset+2, len(rows))

		json.NewEncoder(w).Encode(map[string]any{
			"items":   rows[offset:end],
			"hasMore": end < len(rows),
			"links":   []any{},
		})
	})

	result, err := c.List(context.Background(), record.Answers, record.Filter{"id_evaluacion": int64(5)})
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"0", "2"}, offsets)
	mu.Unlock()
	require.Len(t, result, 3)
	assert.Equal(t, 3.0, result[2]["id_respuesta"])
}

func TestClient_CreateSendsJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ords/admin/ce_score_cap_dim/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"id_evaluacion":1,"score":6.67}`, string(body))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id_score":11,"id_evaluacion":1,"score":6.67}`))
	})

	r, err := c.Create(context.Background(), record.Scores, record.Record{"id_evaluacion": 1, "score": 6.67})
	require.NoError(t, err)
	assert.Equal(t, 11.0, r["id_score"])
}

func TestClient_UpdateKeepsKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/ords/admin/ce_score_cap_dim/11", r.URL.Path)
		w.Write([]byte(`{"score":7}`))
	})

	r, err := c.Update(context.Background(), record.Scores, 11, record.Record{"score": 7})
	require.NoError(t, err)
	id, ok := record.IDOf(record.Scores, r)
	require.True(t, ok)
	assert.Equal(t, int64(11), id)
}

func TestClient_DeleteEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, c.Delete(context.Background(), record.RuleResults, 3))
}

func TestClient_NonJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>ok</html>"))
	})

	r, err := c.Get(context.Background(), record.Rules, 1)
	require.NoError(t, err)
	assert.Empty(t, r)
}

func TestFilterQuery(t *testing.T) {
	q, err := filterQuery(nil)
	require.NoError(t, err)
	assert.Empty(t, q)

	q, err = filterQuery(record.Filter{"fl_activa": "Y", "valor2": nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fl_activa":"Y","valor2":{"$null":null}}`, q)
}
