// Package remote implements browser.Page on top of a remote
// browser-automation HTTP API. Each page maps to one remote browser context;
// every interaction is a JSON action POSTed to the service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/antidetect"
	"github.com/adityawiguna/jobscout-api/internal/browser"
)

const defaultActionTimeout = 30 * time.Second

// Client talks to the automation service. Safe for concurrent use; each
// scraping session should create its own Page.
type Client struct {
	endpoint string
	token    string
	httpc    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient sets the HTTP client. Used in tests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 2 * defaultActionTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewPage allocates a fresh browser context on the remote service.
func (c *Client) NewPage(ctx context.Context) (browser.Page, error) {
	var out struct {
		PageID string `json:"pageId"`
	}
	if err := c.post(ctx, "/v1/pages", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if out.PageID == "" {
		return nil, fmt.Errorf("create page: empty page id")
	}
	return &page{c: c, id: out.PageID}, nil
}

type action struct {
	Action      string                  `json:"action"`
	URL         string                  `json:"url,omitempty"`
	Selector    string                  `json:"selector,omitempty"`
	Name        string                  `json:"name,omitempty"`
	Text        string                  `json:"text,omitempty"`
	ElementID   string                  `json:"elementId,omitempty"`
	Pixels      int                     `json:"pixels,omitempty"`
	X           int                     `json:"x,omitempty"`
	Y           int                     `json:"y,omitempty"`
	TimeoutMs   int64                   `json:"timeoutMs,omitempty"`
	DelaysMs    []int64                 `json:"delaysMs,omitempty"`
	Fingerprint *antidetect.Fingerprint `json:"fingerprint,omitempty"`
}

type actionResult struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Status   int    `json:"status,omitempty"`
	Value    string `json:"value,omitempty"`
	Found    bool   `json:"found,omitempty"`
	Elements []struct {
		ID string `json:"id"`
	} `json:"elements,omitempty"`
}

type page struct {
	c  *Client
	id string
}

func (p *page) do(ctx context.Context, a action) (*actionResult, error) {
	var res actionResult
	if err := p.c.post(ctx, "/v1/pages/"+p.id+"/actions", a, &res); err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("%s: %s", a.Action, res.Error)
	}
	return &res, nil
}

func (p *page) ApplyFingerprint(ctx context.Context, fp antidetect.Fingerprint) error {
	_, err := p.do(ctx, action{Action: "fingerprint", Fingerprint: &fp})
	return err
}

func (p *page) Navigate(ctx context.Context, url string, timeout time.Duration) (browser.Response, error) {
	start := time.Now()
	res, err := p.do(ctx, action{Action: "navigate", URL: url, TimeoutMs: timeout.Milliseconds()})
	elapsed := time.Since(start)
	if err != nil {
		return browser.Response{Elapsed: elapsed}, err
	}
	return browser.Response{Status: res.Status, Elapsed: elapsed}, nil
}

func (p *page) URL(ctx context.Context) (string, error) {
	res, err := p.do(ctx, action{Action: "url"})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (p *page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.do(ctx, action{Action: "waitVisible", Selector: selector, TimeoutMs: timeout.Milliseconds()})
	return err
}

func (p *page) Exists(ctx context.Context, selector string) (bool, error) {
	res, err := p.do(ctx, action{Action: "exists", Selector: selector})
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

func (p *page) Click(ctx context.Context, selector string) error {
	_, err := p.do(ctx, action{Action: "click", Selector: selector})
	return err
}

func (p *page) ScrollBy(ctx context.Context, pixels int) error {
	_, err := p.do(ctx, action{Action: "scroll", Pixels: pixels})
	return err
}

func (p *page) MoveMouse(ctx context.Context, x, y int) error {
	_, err := p.do(ctx, action{Action: "mouseMove", X: x, Y: y})
	return err
}

func (p *page) TypeText(ctx context.Context, selector, text string, delays []time.Duration) error {
	ms := make([]int64, len(delays))
	for i, d := range delays {
		ms[i] = d.Milliseconds()
	}
	_, err := p.do(ctx, action{Action: "type", Selector: selector, Text: text, DelaysMs: ms})
	return err
}

func (p *page) Text(ctx context.Context, selector string) (string, error) {
	res, err := p.do(ctx, action{Action: "text", Selector: selector})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (p *page) Elements(ctx context.Context, selector string) ([]browser.Element, error) {
	res, err := p.do(ctx, action{Action: "query", Selector: selector})
	if err != nil {
		return nil, err
	}
	elements := make([]browser.Element, 0, len(res.Elements))
	for _, e := range res.Elements {
		elements = append(elements, &element{p: p, id: e.ID})
	}
	return elements, nil
}

func (p *page) Close(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.c.endpoint+"/v1/pages/"+p.id, nil)
	if err != nil {
		return err
	}
	p.c.auth(req)
	res, err := p.c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("close page: %w", err)
	}
	_ = res.Body.Close()
	return nil
}

type element struct {
	p  *page
	id string
}

func (e *element) Text(ctx context.Context, selector string) (string, error) {
	res, err := e.p.do(ctx, action{Action: "elementText", ElementID: e.id, Selector: selector})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (e *element) Attr(ctx context.Context, selector, name string) (string, error) {
	res, err := e.p.do(ctx, action{Action: "elementAttr", ElementID: e.id, Selector: selector, Name: name})
	if err != nil {
		return "", err
	}
	return res.Value, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("automation service: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("automation service returned HTTP %d: %s", res.StatusCode, string(b))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
