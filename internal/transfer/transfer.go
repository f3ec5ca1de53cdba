// Package transfer performs plain HTTP GETs against presigned object URLs.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/imroc/req/v3"
	"github.com/openmined/modsync/internal/utils"
	"github.com/openmined/modsync/internal/version"
)

const (
	// error bodies from S3/MinIO are short xml documents
	maxErrorBody = 4 * 1024
	copyBufSize  = 64 * 1024
)

var UserAgent = fmt.Sprintf("modsync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Client fetches presigned URLs. It never retries; a failed request surfaces
// immediately to the caller.
type Client struct {
	http *req.Client
}

func NewClient() *Client {
	return &Client{
		http: req.C().
			SetUserAgent(UserAgent).
			// large files can take longer than any fixed deadline; stalled
			// connections are bounded by the transport and the caller's context
			SetTimeout(0).
			// manifest sizes and etags describe the stored bytes, keep them as is
			DisableCompression().
			DisableAutoDecompress(),
	}
}

// FetchBody GETs url and returns the whole response body.
func (c *Client) FetchBody(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		return nil, &TransportError{Op: "fetch", URL: redact(rawURL), Code: CodeTransport, Err: err}
	}

	if !resp.IsSuccessState() {
		code, msg := classifyStatus(resp.GetStatusCode(), resp.String())
		return nil, &TransportError{Op: "fetch", URL: redact(rawURL), StatusCode: resp.GetStatusCode(), Code: code, Message: msg}
	}

	return resp.Bytes(), nil
}

// StreamToFile GETs url and streams the body to destPath, creating missing parent
// directories. The body lands in a temp file next to destPath and is renamed over
// it once complete, so a failed transfer never leaves a truncated file behind.
// It returns the number of bytes written.
func (c *Client) StreamToFile(ctx context.Context, rawURL, destPath string) (int64, error) {
	fail := func(status int, code, msg string, err error) (int64, error) {
		return 0, &TransportError{Op: "download", URL: redact(rawURL), StatusCode: status, Code: code, Message: msg, Err: err}
	}

	if err := utils.EnsureParent(destPath); err != nil {
		return fail(0, CodeWriteFailed, "", fmt.Errorf("ensure parent: %w", err))
	}

	resp, err := c.http.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(rawURL)
	if err != nil {
		return fail(0, CodeTransport, "", err)
	}
	defer resp.Body.Close()

	if !resp.IsSuccessState() {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code, msg := classifyStatus(resp.GetStatusCode(), string(body))
		return fail(resp.GetStatusCode(), code, msg, nil)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".modsync.tmp.*")
	if err != nil {
		return fail(0, CodeWriteFailed, "", fmt.Errorf("create temp file: %w", err))
	}
	tempPath := tempFile.Name()

	success := false

	// Cleanup temp file only on failure
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	written, err := io.CopyBuffer(tempFile, resp.Body, make([]byte, copyBufSize))
	if err != nil {
		// a read error is the connection dropping, a write error is the local disk
		return fail(resp.GetStatusCode(), CodeTransport, "", fmt.Errorf("copy body: %w", err))
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return fail(resp.GetStatusCode(), CodeTransport, "", fmt.Errorf("short body: got %d of %d bytes", written, resp.ContentLength))
	}

	if err := tempFile.Sync(); err != nil {
		return fail(0, CodeWriteFailed, "", fmt.Errorf("sync temp file: %w", err))
	}

	if err := tempFile.Close(); err != nil {
		return fail(0, CodeWriteFailed, "", fmt.Errorf("close temp file: %w", err))
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		return fail(0, CodeWriteFailed, "", fmt.Errorf("rename temp file: %w", err))
	}

	success = true
	return written, nil
}

// redact drops the query string, which carries the presigned signature.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
