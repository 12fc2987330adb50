package vkapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Storm-bit/vk-bot-sdk/pkg/vkapi/types"
)

const (
	DefaultMaxHTTPRetries = 2
	UserAgent             = "vk-bot-sdk (+https://github.com/Storm-bit/vk-bot-sdk)"
)

var (
	ErrClientIsNil        = errors.New("client is nil")
	ErrRequestFailed      = errors.New("failed to send request")
	ErrResponseReadFailed = errors.New("failed to read response body")
	ErrMaxRetriesReached  = errors.New("maximum retries reached")
	ErrUnexpectedStatus   = errors.New("unexpected http status")
	ErrMalformedResponse  = errors.New("malformed response")
)

func isPermanentRequestError(err error) bool {
	return errors.Is(err, ErrUnexpectedStatus) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// MakeRequest sends an HTTP request, retrying transport failures up to the
// configured MaxHTTPRetries.
func (c *Client) MakeRequest(ctx context.Context, url string, method string, headers http.Header, payload []byte, contentType types.ContentType) (*http.Response, []byte, error) {
	if c == nil {
		return nil, nil, ErrClientIsNil
	}
	return c.makeRequest(ctx, c.http.Load(), url, method, headers, payload, contentType)
}

func (c *Client) makeRequest(ctx context.Context, httpClient *http.Client, url string, method string, headers http.Header, payload []byte, contentType types.ContentType) (*http.Response, []byte, error) {
	var attempts int
	for {
		attempts++
		start := time.Now()
		resp, respDat, err := c.makeRequestDirect(ctx, httpClient, url, method, headers, payload, contentType)
		dur := time.Since(start)
		if err == nil {
			c.Logger.Trace().
				Str("url", url).
				Str("method", method).
				Dur("duration", dur).
				Int("status_code", resp.StatusCode).
				Msg("Request successful")
			return resp, respDat, nil
		} else if attempts > c.config.MaxHTTPRetries {
			c.Logger.Err(err).
				Str("url", url).
				Str("method", method).
				Dur("duration", dur).
				Msg("Request failed, giving up")
			return nil, nil, fmt.Errorf("%w: %w", ErrMaxRetriesReached, err)
		} else if isPermanentRequestError(err) || ctx.Err() != nil {
			c.Logger.Err(err).
				Str("url", url).
				Str("method", method).
				Dur("duration", dur).
				Msg("Request failed, cannot be retried")
			return nil, nil, err
		}
		c.Logger.Warn().Err(err).
			Str("url", url).
			Str("method", method).
			Dur("duration", dur).
			Msg("Request failed, retrying")
		select {
		case <-time.After(time.Duration(attempts) * time.Second):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (c *Client) makeRequestDirect(ctx context.Context, httpClient *http.Client, url string, method string, headers http.Header, payload []byte, contentType types.ContentType) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	newRequest, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, nil, err
	}

	if headers == nil {
		headers = c.buildHeaders()
	}
	if contentType != types.NONE {
		headers.Set("content-type", string(contentType))
	}
	newRequest.Header = headers

	response, err := httpClient.Do(newRequest)
	defer func() {
		if response != nil && response.Body != nil {
			_ = response.Body.Close()
		}
	}()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrResponseReadFailed, err)
	}
	if response.StatusCode >= 500 {
		return nil, nil, fmt.Errorf("%w: server returned %d", ErrRequestFailed, response.StatusCode)
	} else if response.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("%w %d", ErrUnexpectedStatus, response.StatusCode)
	}

	return response, responseBody, nil
}

func (c *Client) buildHeaders() http.Header {
	headers := http.Header{}
	headers.Set("accept", "application/json")
	headers.Set("accept-language", "en-US,en;q=0.9")
	headers.Set("user-agent", UserAgent)
	return headers
}
