package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	unxiperrors "github.com/flaneur2020/unxip/unxip/errors"
	"github.com/flaneur2020/unxip/unxip/logger"
)

// HTTPStorage reads archives from HTTP servers that support range requests.
// Names are URLs.
type HTTPStorage struct {
	httpClient *http.Client
	username   string
	password   string
}

// NewHTTPStorage creates an HTTP-backed storage.
func NewHTTPStorage(insecure bool) *HTTPStorage {
	client := &http.Client{}
	if insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &HTTPStorage{httpClient: client}
}

// WithCredential returns a copy that sends basic auth with every request.
func (s *HTTPStorage) WithCredential(username, password string) *HTTPStorage {
	return &HTTPStorage{
		httpClient: s.httpClient,
		username:   username,
		password:   password,
	}
}

// WithClient returns a copy using client for requests.
func (s *HTTPStorage) WithClient(client *http.Client) *HTTPStorage {
	return &HTTPStorage{
		httpClient: client,
		username:   s.username,
		password:   s.password,
	}
}

// Stat finds the archive size with a HEAD request, falling back to a
// one-byte range request for servers that reject HEAD.
func (s *HTTPStorage) Stat(ctx context.Context, name string) (Descriptor, error) {
	logger.Info("Fetching archive size: %s", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, name, nil)
	if err != nil {
		return Descriptor{}, unxiperrors.ErrIO.WithMessage("building HEAD request").WithCause(err)
	}
	s.applyAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Descriptor{}, unxiperrors.ErrIO.WithMessage("HEAD request failed").WithCause(err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Descriptor{}, unxiperrors.ErrNotFound.Messagef("archive %s not found", name)
	case resp.StatusCode == http.StatusOK && resp.ContentLength >= 0:
		if resp.Header.Get("Accept-Ranges") != "bytes" {
			logger.Warn("Server does not advertise range support for %s", name)
		}
		return Descriptor{Name: name, Size: resp.ContentLength}, nil
	}

	logger.Debug("HEAD returned %d, probing size with a range request", resp.StatusCode)
	body, contentRange, err := s.get(ctx, name, "bytes=0-0")
	if err != nil {
		return Descriptor{}, err
	}
	body.Close()

	size, err := parseContentRangeSize(contentRange)
	if err != nil {
		return Descriptor{}, unxiperrors.ErrIO.WithMessage("determining archive size").WithCause(err)
	}
	return Descriptor{Name: name, Size: size}, nil
}

// ReadRange issues a GET with a Range header for the requested bytes.
func (s *HTTPStorage) ReadRange(ctx context.Context, name string, offset int64, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative")
	}

	rng := fmt.Sprintf("bytes=%d-", offset)
	if length > 0 {
		rng = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	logger.Debug("Range request %s: %s", name, rng)

	body, _, err := s.get(ctx, name, rng)
	return body, err
}

func (s *HTTPStorage) get(ctx context.Context, name string, rng string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, name, nil)
	if err != nil {
		return nil, "", unxiperrors.ErrIO.WithMessage("building range request").WithCause(err)
	}
	req.Header.Set("Range", rng)
	s.applyAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", unxiperrors.ErrIO.WithMessage("range request failed").WithCause(err)
	}

	if resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", unxiperrors.ErrNotFound.Messagef("archive %s not found", name)
		}
		// a 200 would stream the whole archive from the start
		return nil, "", unxiperrors.ErrIO.Messagef("range request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))).
			WithDetail("range", rng)
	}
	return resp.Body, resp.Header.Get("Content-Range"), nil
}

func (s *HTTPStorage) applyAuth(req *http.Request) {
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
}

// parseContentRangeSize extracts the complete length from a header such as
// "bytes 0-0/12345".
func parseContentRangeSize(contentRange string) (int64, error) {
	i := strings.LastIndexByte(contentRange, '/')
	if i < 0 || !strings.HasPrefix(contentRange, "bytes ") {
		return 0, fmt.Errorf("unexpected Content-Range %q", contentRange)
	}
	total := contentRange[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("server did not report the archive size")
	}
	return strconv.ParseInt(total, 10, 64)
}
