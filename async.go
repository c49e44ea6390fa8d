package requests

import (
	"context"

	"github.com/fpelliccioni/requests/body"
)

// Handler receives the outcome of one asynchronous request. It is
// invoked exactly once, from a separate goroutine.
type Handler func(*Response, error)

// StreamHandler receives the outcome of one asynchronous Ropen.
type StreamHandler func(*Stream, error)

// RequestAsync runs Request on its own goroutine and delivers the
// outcome to h. Cancellation flows through ctx.
func (s *Session) RequestAsync(ctx context.Context, method, url string, src body.Source, ro RequestOptions, h Handler) {
	go func() { h(s.Request(ctx, method, url, src, ro)) }()
}

func (s *Session) GetAsync(ctx context.Context, url string, ro RequestOptions, h Handler) {
	s.RequestAsync(ctx, "GET", url, nil, ro, h)
}

func (s *Session) HeadAsync(ctx context.Context, url string, ro RequestOptions, h Handler) {
	s.RequestAsync(ctx, "HEAD", url, nil, ro, h)
}

func (s *Session) PostAsync(ctx context.Context, url string, src body.Source, ro RequestOptions, h Handler) {
	s.RequestAsync(ctx, "POST", url, src, ro, h)
}

func (s *Session) PutAsync(ctx context.Context, url string, src body.Source, ro RequestOptions, h Handler) {
	s.RequestAsync(ctx, "PUT", url, src, ro, h)
}

func (s *Session) PatchAsync(ctx context.Context, url string, src body.Source, ro RequestOptions, h Handler) {
	s.RequestAsync(ctx, "PATCH", url, src, ro, h)
}

func (s *Session) DeleteAsync(ctx context.Context, url string, ro RequestOptions, h Handler) {
	s.RequestAsync(ctx, "DELETE", url, nil, ro, h)
}

func (s *Session) DownloadAsync(ctx context.Context, url string, ro RequestOptions, path string, h Handler) {
	go func() { h(s.Download(ctx, url, ro, path)) }()
}

func (s *Session) RopenAsync(ctx context.Context, method, url string, src body.Source, ro RequestOptions, h StreamHandler) {
	go func() { h(s.Ropen(ctx, method, url, src, ro)) }()
}

// Package-level async forms on the default session.

func RequestAsync(ctx context.Context, method, url string, src body.Source, ro RequestOptions, h Handler) {
	Default().RequestAsync(ctx, method, url, src, ro, h)
}

func GetAsync(ctx context.Context, url string, ro RequestOptions, h Handler) {
	Default().GetAsync(ctx, url, ro, h)
}

func PostAsync(ctx context.Context, url string, src body.Source, ro RequestOptions, h Handler) {
	Default().PostAsync(ctx, url, src, ro, h)
}

func DownloadAsync(ctx context.Context, url string, ro RequestOptions, path string, h Handler) {
	Default().DownloadAsync(ctx, url, ro, path, h)
}

func RopenAsync(ctx context.Context, method, url string, src body.Source, ro RequestOptions, h StreamHandler) {
	Default().RopenAsync(ctx, method, url, src, ro, h)
}
