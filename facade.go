package requests

import (
	"context"
	"io"
	"os"

	"github.com/fpelliccioni/requests/body"
	"github.com/pkg/errors"
)

// Request performs one buffered request on the session.
func (s *Session) Request(ctx context.Context, method, url string, src body.Source, ro RequestOptions) (*Response, error) {
	st, err := s.Ropen(ctx, method, url, src, ro)
	if err != nil {
		return nil, err
	}

	b, err := st.ReadAll()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Response{
		ResponseHead: st.Head,
		Body:         b,
		History:      st.History,
	}, nil
}

func (s *Session) Get(ctx context.Context, url string, ro RequestOptions) (*Response, error) {
	return s.Request(ctx, "GET", url, nil, ro)
}

func (s *Session) Head(ctx context.Context, url string, ro RequestOptions) (*Response, error) {
	return s.Request(ctx, "HEAD", url, nil, ro)
}

func (s *Session) Post(ctx context.Context, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return s.Request(ctx, "POST", url, src, ro)
}

func (s *Session) Put(ctx context.Context, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return s.Request(ctx, "PUT", url, src, ro)
}

func (s *Session) Patch(ctx context.Context, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return s.Request(ctx, "PATCH", url, src, ro)
}

func (s *Session) Delete(ctx context.Context, url string, ro RequestOptions) (*Response, error) {
	return s.Request(ctx, "DELETE", url, nil, ro)
}

// Download streams the response body into the file at path, truncating
// existing content. On any error the partial file is removed. The
// returned response carries head and history but no body.
func (s *Session) Download(ctx context.Context, url string, ro RequestOptions, path string) (*Response, error) {
	st, err := s.Ropen(ctx, "GET", url, nil, ro)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		_ = st.Close()
		return nil, errors.Wrap(ErrIO, err.Error())
	}

	if _, err := io.Copy(f, st); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		_ = st.Close()
		return nil, err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(ErrIO, err.Error())
	}

	return &Response{
		ResponseHead: st.Head,
		History:      st.History,
	}, nil
}

// Package-level forms run on the process-wide default session.

func Request(ctx context.Context, method, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return Default().Request(ctx, method, url, src, ro)
}

func Get(ctx context.Context, url string, ro RequestOptions) (*Response, error) {
	return Default().Get(ctx, url, ro)
}

func Head(ctx context.Context, url string, ro RequestOptions) (*Response, error) {
	return Default().Head(ctx, url, ro)
}

func Post(ctx context.Context, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return Default().Post(ctx, url, src, ro)
}

func Put(ctx context.Context, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return Default().Put(ctx, url, src, ro)
}

func Patch(ctx context.Context, url string, src body.Source, ro RequestOptions) (*Response, error) {
	return Default().Patch(ctx, url, src, ro)
}

func Delete(ctx context.Context, url string, ro RequestOptions) (*Response, error) {
	return Default().Delete(ctx, url, ro)
}

func Download(ctx context.Context, url string, ro RequestOptions, path string) (*Response, error) {
	return Default().Download(ctx, url, ro, path)
}

func Ropen(ctx context.Context, method, url string, src body.Source, ro RequestOptions) (*Stream, error) {
	return Default().Ropen(ctx, method, url, src, ro)
}
