package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/briangreenhill/csmkit/fault"
)

// RESTStore implements DocumentStore against the assessment backend's
// document API. Responses are classified into the fault taxonomy at
// this boundary, so everything above it sees typed errors. Production
// traffic wraps it in the resilient decorator; RESTStore itself does
// no caching or retrying.
type RESTStore struct {
	http    *http.Client
	baseURL *url.URL
	apiKey  string
}

// RESTOption customizes a RESTStore.
type RESTOption func(*RESTStore)

// WithHTTPClient swaps the HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) RESTOption {
	return func(r *RESTStore) { r.http = h }
}

// NewRESTStore builds a client for the document API at baseURL. The
// API key travels in the api-key header on every request.
func NewRESTStore(baseURL, apiKey string, opts ...RESTOption) (*RESTStore, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	r := &RESTStore{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: u,
		apiKey:  apiKey,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

type restDocument struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type restDocuments struct {
	Documents []restDocument `json:"documents"`
}

type restFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type restQuery struct {
	Filters []restFilter `json:"filters,omitempty"`
	OrderBy string       `json:"orderBy,omitempty"`
	Desc    bool         `json:"desc,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

func collPath(collection string) string {
	return "/collections/" + url.PathEscape(collection)
}

func docPath(collection, id string) string {
	return collPath(collection) + "/documents/" + url.PathEscape(id)
}

func (r *RESTStore) newReq(ctx context.Context, method, p string, body any) (*http.Request, error) {
	u := *r.baseURL
	u.Path = path.Join(u.Path, p)

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if r.apiKey != "" {
		req.Header.Set("api-key", r.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do runs one request and decodes the response into out when out is
// non-nil. collection and id feed the 404 mapping; they are empty for
// calls that do not address a single document.
func (r *RESTStore) do(ctx context.Context, op, method, p, collection, id string, body, out any) error {
	req, err := r.newReq(ctx, method, p, body)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fault.Network(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return statusFault(op, collection, id, resp.StatusCode, b)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.Network(op, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fault.Firestore(op, fmt.Errorf("%s %s: decode: %w", method, p, err))
	}
	return nil
}

// statusFault maps an HTTP status to the taxonomy. 5xx and 429 are
// retryable backend trouble; the 4xx family is the caller's problem
// and is final.
func statusFault(op, collection, id string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusNotFound && id != "":
		return fault.NotFound(collection, id)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fault.Permission(op, errors.New(msg))
	case status == http.StatusConflict:
		return fault.Conflict("%s: %s", op, msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fault.Validation("%s: %s", op, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fault.Firestore(op, fmt.Errorf("%d %s", status, msg))
	default:
		return fault.New(fault.CodeFirestore, fault.SeverityMedium, false,
			fmt.Sprintf("%s: unexpected status %d: %s", op, status, msg))
	}
}

func (r *RESTStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	var out restDocuments
	p := collPath(collection) + "/documents"
	if err := r.do(ctx, "store.getAll", http.MethodGet, p, collection, "", nil, &out); err != nil {
		return nil, err
	}
	return toDocuments(out.Documents), nil
}

func (r *RESTStore) GetByID(ctx context.Context, collection, id string) (Document, error) {
	var out restDocument
	if err := r.do(ctx, "store.getById", http.MethodGet, docPath(collection, id), collection, id, nil, &out); err != nil {
		return Document{}, err
	}
	return Document{ID: out.ID, Data: out.Data}, nil
}

func (r *RESTStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	body := restQuery{
		OrderBy: q.OrderBy,
		Desc:    q.Desc,
		Limit:   q.Limit,
	}
	for _, f := range q.Filters {
		body.Filters = append(body.Filters, restFilter{Field: f.Field, Op: f.Op, Value: f.Value})
	}
	var out restDocuments
	p := collPath(collection) + "/query"
	if err := r.do(ctx, "store.query", http.MethodPost, p, collection, "", body, &out); err != nil {
		return nil, err
	}
	return toDocuments(out.Documents), nil
}

func (r *RESTStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	return r.do(ctx, "store.update", http.MethodPatch, docPath(collection, id), collection, id, patch, nil)
}

// Delete is idempotent: deleting a document that is already gone
// succeeds, matching the in-memory store.
func (r *RESTStore) Delete(ctx context.Context, collection, id string) error {
	err := r.do(ctx, "store.delete", http.MethodDelete, docPath(collection, id), collection, id, nil, nil)
	if fault.HasCode(err, fault.CodeNotFound) {
		return nil
	}
	return err
}

func (r *RESTStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	body := map[string]any{"ops": ops}
	return r.do(ctx, "store.batchWrite", http.MethodPost, "/batch", "", "", body, nil)
}

func toDocuments(in []restDocument) []Document {
	docs := make([]Document, 0, len(in))
	for _, d := range in {
		docs = append(docs, Document{ID: d.ID, Data: d.Data})
	}
	return docs
}
