package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher returns the fully rendered HTML of a page. Any failure (navigation,
// timeout, bad status) is a source-level error for the caller to record.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// RenderClient fetches pages through an external rendering service with a
// browserless-style /content endpoint: the service drives a headless browser
// session, waits for scripts, and returns the settled DOM as HTML. The
// session is a shared resource; callers must not fetch concurrently.
type RenderClient struct {
	http *resty.Client
}

// NewRenderClient creates a client for the rendering service at serviceURL.
// Every request carries the timeout so a hung browser session cannot wedge a
// whole scan.
func NewRenderClient(serviceURL string, timeout time.Duration) *RenderClient {
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(serviceURL)
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", userAgent)

	return &RenderClient{http: client}
}

func (c *RenderClient) Fetch(ctx context.Context, url string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(map[string]string{"url": url}).
		Post("/content")
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	if res.StatusCode() != 200 {
		return "", fmt.Errorf("render %s: status %d", url, res.StatusCode())
	}
	return string(res.Body()), nil
}

// StaticClient fetches pages directly over HTTP, for instances whose markup
// is complete without script execution.
type StaticClient struct {
	http *resty.Client
}

// NewStaticClient creates a plain HTTP fetcher.
func NewStaticClient(timeout time.Duration) *StaticClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", userAgent)

	return &StaticClient{http: client}
}

func (c *StaticClient) Fetch(ctx context.Context, url string) (string, error) {
	res, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if res.StatusCode() != 200 {
		return "", fmt.Errorf("fetch %s: status %d", url, res.StatusCode())
	}
	return string(res.Body()), nil
}
