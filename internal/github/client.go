// Package github talks to the GitHub REST API on behalf of the GitHub
// storage provider and the updater. It also maps devlog entries to issue
// bodies and labels.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HendryAvila/devlog/internal/cache"
	"github.com/HendryAvila/devlog/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.github.com"
	requestTimeout = 30 * time.Second
	maxPerPage     = 100
)

// Config addresses one repository.
type Config struct {
	BaseURL   string
	Owner     string
	Repo      string
	Token     string
	UserAgent string
}

// Client is a small GitHub REST client. GET responses are cached by URL
// and every write purges the cache.
type Client struct {
	http      *http.Client
	baseURL   string
	owner     string
	repo      string
	userAgent string
	limiter   *ratelimit.Limiter
	cache     *cache.LRU[string, []byte]
	logger    *zap.Logger

	labelsMu sync.Mutex
	labels   map[string]bool // labels known to exist
}

// NewClient builds a client. limiter and c may be nil.
func NewClient(cfg Config, limiter *ratelimit.Limiter, c *cache.LRU[string, []byte], logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var hc *http.Client
	if cfg.Token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = requestTimeout

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "devlog"
	}
	return &Client{
		http:      hc,
		baseURL:   base,
		owner:     cfg.Owner,
		repo:      cfg.Repo,
		userAgent: ua,
		limiter:   limiter,
		cache:     c,
		logger:    logger.Named("github"),
		labels:    map[string]bool{},
	}
}

// Repo returns "owner/repo".
func (c *Client) Repo() string { return c.owner + "/" + c.repo }

// ─── Issues ──────────────────────────────────────────────────────────────────

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, number int64) (*Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodGet, c.repoPath("issues", strconv.FormatInt(number, 10)), nil, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodPost, c.repoPath("issues"), nil, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// RateLimit returns the budget last reported by GitHub. It is unknown
// when the client has no limiter.
func (c *Client) RateLimit() ratelimit.Snapshot {
	if c.limiter == nil {
		return ratelimit.Snapshot{Remaining: -1}
	}
	return c.limiter.Snapshot()
}

// UpdateIssue edits an issue.
func (c *Client) UpdateIssue(ctx context.Context, number int64, req IssueRequest) (*Issue, error) {
	var issue Issue
	if err := c.do(ctx, http.MethodPatch, c.repoPath("issues", strconv.FormatInt(number, 10)), nil, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// SearchIssues runs the issue search API. The caller supplies the full
// query, qualifiers included.
func (c *Client) SearchIssues(ctx context.Context, query string, page, perPage int) (*SearchResult, error) {
	q := url.Values{"q": {query}}
	setPage(q, page, perPage)
	var res SearchResult
	if err := c.do(ctx, http.MethodGet, "/search/issues", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── Comments ────────────────────────────────────────────────────────────────

// ListComments returns every comment on an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, number int64) ([]Comment, error) {
	var all []Comment
	for page := 1; ; page++ {
		q := url.Values{}
		setPage(q, page, maxPerPage)
		var batch []Comment
		if err := c.do(ctx, http.MethodGet, c.repoPath("issues", strconv.FormatInt(number, 10), "comments"), q, nil, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < maxPerPage {
			return all, nil
		}
	}
}

// CreateComment adds a comment to an issue.
func (c *Client) CreateComment(ctx context.Context, number int64, body string) (*Comment, error) {
	var comment Comment
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, c.repoPath("issues", strconv.FormatInt(number, 10), "comments"), nil, payload, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ─── Labels ──────────────────────────────────────────────────────────────────

// EnsureLabel creates the label unless it already exists. Labels seen
// once are remembered for the client's lifetime.
func (c *Client) EnsureLabel(ctx context.Context, l Label) error {
	c.labelsMu.Lock()
	known := c.labels[l.Name]
	c.labelsMu.Unlock()
	if known {
		return nil
	}

	err := c.do(ctx, http.MethodGet, c.repoPath("labels", l.Name), nil, nil, nil)
	if IsNotFound(err) {
		err = c.do(ctx, http.MethodPost, c.repoPath("labels"), nil, l, nil)
	}
	if err != nil {
		return fmt.Errorf("ensure label %q: %w", l.Name, err)
	}

	c.labelsMu.Lock()
	c.labels[l.Name] = true
	c.labelsMu.Unlock()
	return nil
}

// ─── Releases ────────────────────────────────────────────────────────────────

// LatestRelease returns the newest release of owner/repo, which need not
// be the client's own repository.
func (c *Client) LatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	var rel Release
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/releases/latest"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// Download streams an absolute URL, typically a release asset. The
// caller closes the body.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "download failed"}
	}
	return resp.Body, nil
}

// ─── Transport ───────────────────────────────────────────────────────────────

func (c *Client) repoPath(parts ...string) string {
	var sb strings.Builder
	sb.WriteString("/repos/")
	sb.WriteString(url.PathEscape(c.owner))
	sb.WriteString("/")
	sb.WriteString(url.PathEscape(c.repo))
	for _, p := range parts {
		sb.WriteString("/")
		sb.WriteString(url.PathEscape(p))
	}
	return sb.String()
}

func setPage(q url.Values, page, perPage int) {
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page <= 0 {
		page = 1
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
}

// do sends one request and decodes the JSON response into out (when not
// nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if method == http.MethodGet && c.cache != nil {
		if data, ok := c.cache.Get(target); ok {
			return decode(data, out)
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("github: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("github: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.limiter != nil {
		c.limiter.ObserveHeaders(resp.Header)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("github: read response: %w", err)
	}
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return apiError(resp, data)
	}

	if c.cache != nil {
		if method == http.MethodGet {
			c.cache.Set(target, data)
		} else {
			c.cache.Purge()
		}
	}
	return decode(data, out)
}

func decode(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("github: decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response, data []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &payload)
	e := &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
	if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) &&
		resp.Header.Get("X-RateLimit-Remaining") == "0" {
		e.RateLimited = true
	}
	return e
}
