// Package smarthttp is the byte-stream collaborator that talks to a
// smart-HTTP git server: it issues the two requests a clone needs
// (advertised-refs discovery and the upload-pack negotiation POST) and
// hands back raw response bodies for refdiscovery/packfile to parse.
package smarthttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/xerrors"
)

const (
	refsContentType    = "application/x-git-upload-pack-advertisement"
	requestContentType = "application/x-git-upload-pack-request"
)

// ErrUnexpectedContentType is returned when a server's response doesn't
// carry the content-type the smart-HTTP protocol requires.
var ErrUnexpectedContentType = errors.New("smarthttp: unexpected response content-type")

// ErrUnexpectedStatus is returned when a server responds with a non-2xx
// status code.
var ErrUnexpectedStatus = errors.New("smarthttp: unexpected response status")

// Client talks to a single smart-HTTP remote.
type Client struct {
	// BaseURL is the repository URL, without a trailing slash, e.g.
	// "https://example.com/owner/repo.git".
	BaseURL string
	// HTTPClient is used to perform requests. Defaults to
	// http.DefaultClient if nil.
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// DiscoverRefs issues the GET info/refs request and returns the
// response body (a pkt-line-framed ref advertisement). The caller is
// responsible for closing it.
func (c *Client) DiscoverRefs(ctx context.Context) (io.ReadCloser, error) {
	url := c.BaseURL + "/info/refs?service=git-upload-pack"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Errorf("smarthttp: could not build info/refs request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, xerrors.Errorf("smarthttp: info/refs request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close() //nolint:errcheck // already returning an error
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != refsContentType {
		resp.Body.Close() //nolint:errcheck // already returning an error
		return nil, fmt.Errorf("%w: got %q, want %q", ErrUnexpectedContentType, ct, refsContentType)
	}
	return resp.Body, nil
}

// UploadPack POSTs a fetch negotiation body and returns the response
// body: the ACK/NAK preface followed by a raw pack stream. The caller
// is responsible for closing it.
func (c *Client) UploadPack(ctx context.Context, body io.Reader) (io.ReadCloser, error) {
	url := c.BaseURL + "/git-upload-pack"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, xerrors.Errorf("smarthttp: could not build git-upload-pack request: %w", err)
	}
	req.Header.Set("Content-Type", requestContentType)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, xerrors.Errorf("smarthttp: git-upload-pack request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close() //nolint:errcheck // already returning an error
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp.Body, nil
}
