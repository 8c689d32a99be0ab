package loader

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by sources when an asset does not exist.
var ErrNotFound = errors.New("asset not found")

// Source opens raw asset bytes by file name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// NewSource returns an HTTP source for http(s) bases and a directory source otherwise.
func NewSource(base string, timeout time.Duration) Source {
	if strings.HasPrefix(base, "http") {
		return &HTTPSource{
			Base: base,
			Client: &http.Client{
				Transport: &http.Transport{
					TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 100,
				},
				Timeout: timeout,
			},
		}
	}

	return &DirSource{Root: base}
}

// HTTPSource fetches assets relative to a base URL.
type HTTPSource struct {
	Base   string
	Client *http.Client
}

// Open issues a GET for base/name.
func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	url := strings.TrimRight(s.Base, "/") + "/" + strings.TrimLeft(name, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	log.Trace().Str("url", url).Msg("Fetching asset")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status code %d", url, resp.StatusCode)
	}

	return resp.Body, nil
}

// DirSource reads assets from a local directory.
type DirSource struct {
	Root string
}

// Open opens Root/name. Names may not escape Root.
func (s *DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash("/" + name))
	path := filepath.Join(s.Root, clean)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	return f, nil
}
