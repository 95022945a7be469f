package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"lens/internal/model"
	"lens/internal/util"
	"lens/internal/worker"
)

// HTTPOptions configures the reference HTTP fetcher.
type HTTPOptions struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBodyBytes  int64
	RespectRobots bool
	Limiter       *worker.Limiter // optional per-source rate limiter
}

// HTTPFetcher is the reference Fetcher implementation: substitutes the
// query into the source's endpoint template and fetches one payload.
// Text-mode sources get the visible text of the response instead of raw
// HTML so downstream rules see a stable evidence surface.
type HTTPFetcher struct {
	spec       Spec
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
}

// NewHTTPFetcher builds the reference fetcher for one source spec.
func NewHTTPFetcher(spec Spec, opts HTTPOptions) *HTTPFetcher {
	timeout := spec.Timeout
	if opts.Timeout > 0 && opts.Timeout < timeout {
		timeout = opts.Timeout
	}
	f := &HTTPFetcher{
		spec: spec,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBodyBytes,
		limiter:   opts.Limiter,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 2_000_000
	}
	if opts.RespectRobots {
		f.robots = util.NewRobotsChecker(opts.UserAgent, timeout)
	}
	return f
}

// SourceID returns the source id this fetcher serves.
func (f *HTTPFetcher) SourceID() string { return f.spec.ID }

// Fetch retrieves one payload for the query.
func (f *HTTPFetcher) Fetch(ctx context.Context, query string) (*model.RawArtifact, error) {
	endpoint := strings.ReplaceAll(f.spec.Endpoint, "{query}", url.QueryEscape(query))

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.spec.ID); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if f.robots != nil && !f.robots.IsAllowed(ctx, endpoint) {
		return nil, fmt.Errorf("disallowed by robots.txt: %s", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json,text/html;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if f.spec.Decoder.Kind == "text" && looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		body = []byte(visibleText(body))
	}

	artifact := model.NewRawArtifact(f.spec.ID, query, body, time.Now())
	return &artifact, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(trimmed, "<!") || strings.HasPrefix(trimmed, "<html")
}

// visibleText strips an HTML payload down to its visible text, skipping
// script/style/noscript subtrees.
func visibleText(payload []byte) string {
	doc, err := html.Parse(strings.NewReader(string(payload)))
	if err != nil {
		return string(payload)
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(buf.String())
}
