package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/crm-client/pkg/collection"
)

// maxBodyBytes caps list responses read into memory.
const maxBodyBytes = 8 << 20

// Pagination is the pagination block of a list response.
type Pagination struct {
	CurrentPage int `json:"current_page" yaml:"current_page"`
	LastPage    int `json:"last_page" yaml:"last_page"`
	Total       int `json:"total" yaml:"total"`
	PerPage     int `json:"per_page" yaml:"per_page"`
	From        int `json:"from" yaml:"from"`
	To          int `json:"to" yaml:"to"`
}

// envelope is the common list response shape:
//
//	{"status": "success", "data": [...], "pagination": {...}}
//
// Paginator-style bodies that nest items under data.data with the
// pagination fields beside them are accepted too.
type envelope struct {
	Status     json.RawMessage `json:"status"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Meta       *Pagination     `json:"meta"`
}

// ListSource fetches entity pages through a Client.
type ListSource[T any] struct {
	client *Client
}

// NewListSource returns a collection.Source backed by c.
func NewListSource[T any](c *Client) *ListSource[T] {
	return &ListSource[T]{client: c}
}

var _ collection.Source[struct{}] = (*ListSource[struct{}])(nil)

// List implements collection.Source.
func (s *ListSource[T]) List(ctx context.Context, endpoint string, q url.Values) (collection.Page[T], error) {
	resp, err := s.client.Get(ctx, endpoint, q)
	if err != nil {
		return collection.Page[T]{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return collection.Page[T]{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			RequestID:  requestIDOf(resp),
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return collection.Page[T]{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    messageOf(body, resp.Status),
			RequestID:  requestIDOf(resp),
		}
	}

	return DecodePage[T](body)
}

// PaginationOf returns the pagination block describing page.
func PaginationOf[T any](page collection.Page[T]) Pagination {
	return Pagination{
		CurrentPage: page.CurrentPage,
		LastPage:    page.LastPage,
		Total:       page.Total,
		PerPage:     page.PerPage,
		From:        page.From,
		To:          page.To,
	}
}

// DecodePage decodes a list response body into a page.
func DecodePage[T any](body []byte) (collection.Page[T], error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return collection.Page[T]{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if !statusOK(env.Status) {
		msg := env.Message
		if msg == "" {
			msg = strings.Trim(string(env.Status), `"`)
		}
		return collection.Page[T]{}, fmt.Errorf("%w: %s", ErrServerReportedFailure, msg)
	}

	items, pag, err := decodeData[T](env.Data)
	if err != nil {
		return collection.Page[T]{}, err
	}
	if pag == nil {
		pag = env.Pagination
	}
	if pag == nil {
		pag = env.Meta
	}
	if pag == nil {
		return collection.Page[T]{}, fmt.Errorf("%w: missing pagination", ErrMalformedResponse)
	}
	if pag.Total < 0 || pag.LastPage < 0 || pag.PerPage < 0 || pag.CurrentPage < 0 {
		return collection.Page[T]{}, fmt.Errorf("%w: negative pagination value", ErrMalformedResponse)
	}

	return collection.Page[T]{
		Items:       items,
		Total:       pag.Total,
		PerPage:     pag.PerPage,
		CurrentPage: pag.CurrentPage,
		LastPage:    pag.LastPage,
		From:        pag.From,
		To:          pag.To,
	}, nil
}

// decodeData accepts either an item array or a paginator object.
func decodeData[T any](raw json.RawMessage) ([]T, *Pagination, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, fmt.Errorf("%w: decode items: %v", ErrMalformedResponse, err)
		}
		return items, nil, nil
	}

	var paginator struct {
		Pagination
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(raw, &paginator); err != nil {
		return nil, nil, fmt.Errorf("%w: decode paginator: %v", ErrMalformedResponse, err)
	}
	if paginator.Data == nil {
		return nil, nil, fmt.Errorf("%w: paginator without data", ErrMalformedResponse)
	}
	if paginator.LastPage == 0 {
		return paginator.Data, nil, nil
	}
	return paginator.Data, &paginator.Pagination, nil
}

// statusOK interprets the status discriminator. A missing discriminator
// counts as success.
func statusOK(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return true
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(s) {
		case "success", "ok", "true":
			return true
		}
	}
	return false
}

// messageOf extracts a backend error message, falling back to def.
func messageOf(body []byte, def string) string {
	var env struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil && env.Message != "" {
		return env.Message
	}
	return def
}

func requestIDOf(resp *http.Response) string {
	if id := resp.Header.Get(HeaderRequestID); id != "" {
		return id
	}
	if resp.Request != nil {
		return resp.Request.Header.Get(HeaderRequestID)
	}
	return ""
}
