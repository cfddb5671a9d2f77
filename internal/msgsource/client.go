package msgsource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mediavault/mediavault/internal/scheduler"
	"github.com/mediavault/mediavault/internal/transfer"
)

// Client reads message attachments through the media gateway's HTTP API.
// It implements the transfer source interface.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a gateway client. The gateway URL is the base, e.g.
// http://127.0.0.1:8090.
func New(gatewayURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(gatewayURL, "/"),
		http: &http.Client{
			// No overall timeout: bulk objects stream for a long time.
			// Connection establishment is still bounded.
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   4,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		logger: logger,
	}
}

func (c *Client) mediaURL(loc scheduler.Locator) string {
	return fmt.Sprintf("%s/media/%s/%d", c.baseURL, url.PathEscape(loc.Channel), loc.MessageID)
}

// Resolve probes the attachment with a HEAD request and reports its size.
// A missing Content-Length leaves the size unknown.
func (c *Client) Resolve(ctx context.Context, loc scheduler.Locator) (transfer.ObjectHandle, error) {
	ref := c.mediaURL(loc)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref, nil)
	if err != nil {
		return transfer.ObjectHandle{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transfer.ObjectHandle{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return transfer.ObjectHandle{}, fmt.Errorf("message %s has no downloadable attachment", loc.Key())
	default:
		return transfer.ObjectHandle{}, fmt.Errorf("gateway returned %s for %s", resp.Status, loc.Key())
	}

	size := transfer.SizeUnknown
	if resp.ContentLength >= 0 {
		size = resp.ContentLength
	}
	return transfer.ObjectHandle{Locator: loc, SizeBytes: size, Ref: ref}, nil
}

// FileName reports the attachment's original file name, or "" when the
// gateway does not expose one.
func (c *Client) FileName(ctx context.Context, loc scheduler.Locator) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.mediaURL(loc), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return "", nil
	}
	return params["filename"], nil
}

// Open starts one streaming GET for the whole object. Chunked reads pull
// from the response body, so cancelling the request context aborts the
// stream immediately.
func (c *Client) Open(ctx context.Context, handle transfer.ObjectHandle) (transfer.ObjectReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.Ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("gateway returned %s for %s", resp.Status, handle.Locator.Key())
	}
	return &streamReader{body: resp.Body}, nil
}

type streamReader struct {
	body io.ReadCloser
}

func (r *streamReader) ReadChunk(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(r.body, buf)
	switch err {
	case nil:
		return n, nil
	case io.ErrUnexpectedEOF:
		return n, io.EOF
	default:
		return n, err
	}
}

func (r *streamReader) Close() error {
	return r.body.Close()
}
