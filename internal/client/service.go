package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Page is the backend's list envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Service is the typed CRUD surface of one backend resource.
type Service[T any] struct {
	c        *Client
	resource string
}

func NewService[T any](c *Client, resource string) *Service[T] {
	return &Service[T]{c: c, resource: resource}
}

// Resource returns the resource path segment.
func (s *Service[T]) Resource() string {
	return s.resource
}

func (s *Service[T]) base() string {
	return "/" + s.resource
}

func (s *Service[T]) item(id string) string {
	return s.base() + "/" + url.PathEscape(id)
}

func pageQuery(page int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	return q
}

func (s *Service[T]) List(ctx context.Context, page int) (*Page[T], error) {
	var out Page[T]
	if err := s.c.do(ctx, http.MethodGet, s.base(), pageQuery(page), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service[T]) Search(ctx context.Context, query string, page int) (*Page[T], error) {
	q := pageQuery(page)
	q.Set("q", query)
	var out Page[T]
	if err := s.c.do(ctx, http.MethodGet, s.base()+"/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := s.c.do(ctx, http.MethodGet, s.item(id), nil, nil, &out)
	return out, err
}

func (s *Service[T]) Create(ctx context.Context, body any) (T, error) {
	var out T
	err := s.c.do(ctx, http.MethodPost, s.base(), nil, body, &out)
	return out, err
}

// Update sends a partial update.
func (s *Service[T]) Update(ctx context.Context, id string, body any) (T, error) {
	var out T
	err := s.c.do(ctx, http.MethodPatch, s.item(id), nil, body, &out)
	return out, err
}

func (s *Service[T]) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, http.MethodDelete, s.item(id), nil, nil, nil)
}
