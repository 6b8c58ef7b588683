package github

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRateLimited is wrapped by APIError when GitHub refused a request
// because the rate-limit budget ran out.
var ErrRateLimited = errors.New("github rate limit exceeded")

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode  int
	Message     string
	RateLimited bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *APIError) Unwrap() error {
	if e.RateLimited {
		return ErrRateLimited
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Issue is the subset of the GitHub issue resource devlog reads.
type Issue struct {
	Number      int64      `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	StateReason string     `json:"state_reason,omitempty"`
	Labels      []Label    `json:"labels"`
	Assignees   []User     `json:"assignees"`
	HTMLURL     string     `json:"html_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	PullRequest *struct{}  `json:"pull_request,omitempty"`
}

// LabelNames returns the names of the issue's labels.
func (i *Issue) LabelNames() []string {
	out := make([]string, len(i.Labels))
	for n, l := range i.Labels {
		out[n] = l.Name
	}
	return out
}

// Label is a repository label.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// User is an account reference.
type User struct {
	Login string `json:"login"`
}

// Comment is an issue comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueRequest is the payload for creating or editing an issue.
type IssueRequest struct {
	Title       string   `json:"title,omitempty"`
	Body        string   `json:"body"`
	State       string   `json:"state,omitempty"`
	StateReason string   `json:"state_reason,omitempty"`
	Labels      []string `json:"labels"`
	Assignees   []string `json:"assignees"`
}

// SearchResult is one page of the issue search API.
type SearchResult struct {
	TotalCount        int     `json:"total_count"`
	IncompleteResults bool    `json:"incomplete_results"`
	Items             []Issue `json:"items"`
}

// Release is a published GitHub release.
type Release struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}
