// Package util holds small shared helpers for the reference HTTP fetcher.
package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker answers robots.txt queries for fetch endpoints, caching one
// parsed policy per host.
type RobotsChecker struct {
	mu         sync.RWMutex
	cache      map[string]*robotstxt.RobotsData
	httpClient *http.Client
	userAgent  string
}

// NewRobotsChecker creates a checker with its own short-timeout client.
func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		cache:      make(map[string]*robotstxt.RobotsData),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// IsAllowed reports whether the URL may be fetched. Unreachable or missing
// robots.txt allows by default; fetch politeness must never turn into a
// source outage.
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := r.policy(ctx, parsed.Scheme, parsed.Host)
	if err != nil {
		return true
	}
	return data.TestAgent(parsed.Path, r.userAgent)
}

func (r *RobotsChecker) policy(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, ok := r.cache[host]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.cache[host] = data
	r.mu.Unlock()
	return data, nil
}
