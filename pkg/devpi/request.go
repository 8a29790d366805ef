package devpi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	apierr "github.com/devpi-tools/devpi-client/pkg/errors"
	"github.com/devpi-tools/devpi-client/pkg/observability"
)

// requestOptions customizes a single request. json takes precedence over
// body when both are set.
type requestOptions struct {
	query       url.Values
	json        any
	body        io.Reader
	contentType string
}

// do issues a request and decodes the JSON response. An empty response body
// yields a nil value. Transport failures map to CodeNetwork, non-success
// statuses to the code for that status, and undecodable bodies to
// CodeResponseParsing.
func (c *Client) do(ctx context.Context, method, path string, opts requestOptions) (any, error) {
	data, err := c.roundTrip(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apierr.Wrap(apierr.CodeResponseParsing, err, "decode response for %s %s", method, path)
	}
	return v, nil
}

// doRaw issues a request and returns the response body verbatim.
func (c *Client) doRaw(ctx context.Context, method, path string, opts requestOptions) ([]byte, error) {
	return c.roundTrip(ctx, method, path, opts)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, opts requestOptions) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(opts.query) > 0 {
		requestURL += "?" + opts.query.Encode()
	}

	var body io.Reader
	contentType := opts.contentType
	if opts.json != nil {
		payload, err := json.Marshal(opts.json)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeValidation, err, "encode request payload for %s %s", method, path)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	} else if opts.body != nil {
		body = opts.body
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeNetwork, err, "build request %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.creds.apply(req)

	hooks := observability.Current()
	ev := observability.Event{Method: method, Host: req.URL.Host, Path: path}
	hooks.Started(ctx, ev)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		ev.Err = err
		hooks.Failed(ctx, ev)
		c.logger.Error("request failed", "method", method, "path", path, "error", err)
		return nil, apierr.Wrap(apierr.CodeNetwork, err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		ev.Err = err
		hooks.Failed(ctx, ev)
		return nil, apierr.Wrap(apierr.CodeNetwork, err, "read response for %s %s", method, path)
	}
	ev.StatusCode = resp.StatusCode
	ev.Duration = time.Since(start)
	hooks.Completed(ctx, ev)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		c.logger.Debug("request succeeded", "method", method, "path", path, "status", resp.StatusCode)
		return data, nil
	}
	c.logger.Error("request failed", "method", method, "path", path, "status", resp.StatusCode)
	return nil, apierr.FromStatus(resp.StatusCode, data, "%s %s failed", method, path)
}
