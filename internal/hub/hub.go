// Package hub fetches dataset files from the Hugging Face Hub.
//
// Downloads are idempotent: a file already present at its destination is
// returned without touching the network, and new files are streamed to a
// temp path and renamed into place so an interrupted download never leaves a
// truncated artifact behind.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/keagan/videomcp/pkg/util"
)

const DefaultEndpoint = "https://huggingface.co"

// Client downloads files from dataset repositories.
type Client struct {
	logger   zerolog.Logger
	endpoint string
	token    string
	http     *http.Client
	progress bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithProgress renders a progress bar on stderr while downloading.
func WithProgress(enabled bool) Option {
	return func(c *Client) { c.progress = enabled }
}

// New creates a hub client. An empty endpoint selects the public hub.
func New(logger zerolog.Logger, endpoint, token string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		logger:   logger.With().Str("component", "hub").Logger(),
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: 0},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileRequest identifies one file inside a dataset repository.
type FileRequest struct {
	RepoID   string
	Revision string
	Filename string
}

// ResolveURL returns the download URL for a dataset file.
func (c *Client) ResolveURL(req FileRequest) string {
	rev := req.Revision
	if rev == "" {
		rev = "main"
	}
	return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s",
		c.endpoint,
		req.RepoID,
		url.PathEscape(rev),
		escapePath(req.Filename),
	)
}

// Download fetches req into destDir and returns the local path. An existing
// non-empty file is reused.
func (c *Client) Download(ctx context.Context, req FileRequest, destDir string) (string, error) {
	if req.RepoID == "" || req.Filename == "" {
		return "", fmt.Errorf("repo id and filename are required")
	}

	dest := filepath.Join(destDir, filepath.FromSlash(req.Filename))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		c.logger.Info().Str("path", dest).Msg("using existing download")
		return dest, nil
	}

	if err := util.EnsureDir(filepath.Dir(dest)); err != nil {
		return "", err
	}

	src := c.ResolveURL(req)
	c.logger.Info().
		Str("repo", req.RepoID).
		Str("file", req.Filename).
		Str("dest", dest).
		Msg("downloading")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", req.Filename, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("download %s: %s (gated dataset? set HF_TOKEN)", req.Filename, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("download %s: unexpected status %s", req.Filename, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	var w io.Writer = tmp
	if c.progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, "downloading "+path.Base(req.Filename))
		defer bar.Close()
		w = io.MultiWriter(tmp, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("download %s: %w", req.Filename, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		os.Remove(tmpPath)
		return "", fmt.Errorf("download %s: short body (%d of %d bytes)", req.Filename, n, resp.ContentLength)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	c.logger.Info().
		Str("path", dest).
		Int64("bytes", n).
		Dur("elapsed", time.Since(start)).
		Msg("download complete")
	return dest, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
