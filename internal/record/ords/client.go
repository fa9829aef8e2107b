// Package ords implements record.Store on top of an Oracle REST Data
// Services AutoREST endpoint.
package ords

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chequeo/internal/record"
	"chequeo/internal/telemetry"

	"golang.org/x/time/rate"
)

// DefaultPageSize is used when the configured page size is not positive.
const DefaultPageSize = 100

// maxErrorBody bounds how much of an error response is kept in errors and logs.
const maxErrorBody = 300

// Client talks to AutoREST tables under a base URL, e.g.
// https://host/ords/admin. Every request is paced by an optional rate
// limiter and bounded by the HTTP client timeout.
type Client struct {
	base     string        // base URL without trailing slash
	client   *http.Client  // HTTP client with request timeout
	limiter  *rate.Limiter // request pacing, nil when unlimited
	pageSize int           // rows requested per list page
}

// NewClient creates an AutoREST store client.
// Parameters:
// - base: AutoREST schema URL
// - timeout: per-request timeout
// - rps: maximum requests per second, 0 disables pacing
// - pageSize: rows per list page
func NewClient(base string, timeout time.Duration, rps float64, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	c := &Client{
		base:     strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: timeout},
		pageSize: pageSize,
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// listPage is one page of an AutoREST collection response.
type listPage struct {
	Items   []record.Record `json:"items"`
	HasMore bool            `json:"hasMore"`
}

func (c *Client) Get(ctx context.Context, col record.Collection, id int64) (record.Record, error) {
	body, err := c.do(ctx, "get", http.MethodGet, col, id, itemPath(col, id), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(ctx, col, body)
}

// List reads every page of the collection matching f. The filter is sent
// as an AutoREST "q" equality query.
func (c *Client) List(ctx context.Context, col record.Collection, f record.Filter) ([]record.Record, error) {
	query, err := filterQuery(f)
	if err != nil {
		return nil, record.NewStoreError("list", col, 0, err)
	}

	result := []record.Record{}
	offset := 0
	for {
		params := url.Values{}
		if query != "" {
			params.Set("q", query)
		}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(c.pageSize))

		body, err := c.do(ctx, "list", http.MethodGet, col, 0, col.Name+"/?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var page listPage
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, record.NewStoreError("list", col, 0, fmt.Errorf("decode page: %w", err))
			}
		}
		for _, item := range page.Items {
			delete(item, "links")
			result = append(result, item)
		}

		if !page.HasMore || len(page.Items) == 0 {
			return result, nil
		}
		offset += len(page.Items)
	}
}

func (c *Client) Create(ctx context.Context, col record.Collection, fields record.Record) (record.Record, error) {
	body, err := c.do(ctx, "create", http.MethodPost, col, 0, col.Name+"/", fields)
	if err != nil {
		return nil, err
	}
	return decodeRecord(ctx, col, body)
}

// Update sends fields with PUT. AutoREST replaces the whole row, so
// callers pass the complete record.
func (c *Client) Update(ctx context.Context, col record.Collection, id int64, fields record.Record) (record.Record, error) {
	body, err := c.do(ctx, "update", http.MethodPut, col, id, itemPath(col, id), fields)
	if err != nil {
		return nil, err
	}
	r, err := decodeRecord(ctx, col, body)
	if err != nil {
		return nil, err
	}
	if _, ok := record.IDOf(col, r); !ok {
		r[col.Key] = id
	}
	return r, nil
}

func (c *Client) Delete(ctx context.Context, col record.Collection, id int64) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, col, id, itemPath(col, id), nil)
	return err
}

// do performs one request and returns the raw body of a successful
// response. 404 becomes NotFoundError, any other status from 400 up and
// transport failures become StoreError.
func (c *Client) do(ctx context.Context, op, method string, col record.Collection, id int64, path string, payload record.Record) ([]byte, error) {
	log := telemetry.Logger(ctx)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, record.NewStoreError(op, col, id, err)
		}
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, record.NewStoreError(op, col, id, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.base + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, record.NewStoreError(op, col, id, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("ORDS connection error", "method", method, "url", target, "error", err)
		return nil, record.NewStoreError(op, col, id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, record.NewStoreError(op, col, id, err)
	}

	if resp.StatusCode == http.StatusNotFound && id != 0 {
		return nil, &record.NotFoundError{Collection: col.Name, ID: id}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		text := truncate(strings.TrimSpace(string(body)))
		log.Error("ORDS error", "method", method, "url", target, "status", resp.StatusCode, "body", text)
		return nil, &record.StoreError{
			Op:         op,
			Collection: col.Name,
			ID:         id,
			Status:     resp.StatusCode,
			Err:        fmt.Errorf("ORDS error %d: %s", resp.StatusCode, text),
		}
	}
	return body, nil
}

// decodeRecord turns a response body into a record. Empty bodies, common
// on DELETE, and non-JSON bodies yield an empty record.
func decodeRecord(ctx context.Context, col record.Collection, body []byte) (record.Record, error) {
	r := record.Record{}
	text := bytes.TrimSpace(body)
	if len(text) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(text, &r); err != nil {
		telemetry.Logger(ctx).Warn("ORDS returned non-JSON body", "collection", col.Name, "body", truncate(string(text)))
		return record.Record{}, nil
	}
	if r == nil {
		r = record.Record{}
	}
	delete(r, "links")
	return r, nil
}

// filterQuery renders an equality filter as an AutoREST query document.
// Nil values are matched with $null.
func filterQuery(f record.Filter) (string, error) {
	if len(f) == 0 {
		return "", nil
	}
	q := make(map[string]any, len(f))
	for field, value := range f {
		if value == nil {
			q[field] = map[string]any{"$null": nil}
			continue
		}
		q[field] = value
	}
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	return string(data), nil
}

func itemPath(col record.Collection, id int64) string {
	return col.Name + "/" + strconv.FormatInt(id, 10)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
