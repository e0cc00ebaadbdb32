package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"
	defaultTrunk      = "main"
	userAgent         = "mybranch.fun/1.0"
	apiVersion        = "2022-11-28"

	branchesPerPage = 100
	maxBranchPages  = 3
)

var (
	// ErrRateLimited indicates the upstream refused the call because the
	// API rate limit is exhausted. Callers surface a remediation hint
	// (configure a token) distinct from generic failure.
	ErrRateLimited = errors.New("github: rate limit exceeded")

	errMissingOwner = errors.New("github: repository owner is required")
	errMissingRepo  = errors.New("github: repository name is required")
)

// Config bundles everything a Client needs. Owner and Repo identify the
// tree repository; Token is optional and raises the rate limit when set.
type Config struct {
	Owner      string
	Repo       string
	Token      string
	Trunk      string
	APIBaseURL string
	RawBaseURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is a thin authenticated wrapper over the GitHub REST API and the
// raw content host. It holds no mutable state and is safe for concurrent use.
type Client struct {
	owner      string
	repo       string
	token      string
	trunk      string
	apiBaseURL string
	rawBaseURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Client with validated configuration.
func NewClient(cfg Config) (*Client, error) {
	owner := strings.TrimSpace(cfg.Owner)
	if owner == "" {
		return nil, errMissingOwner
	}
	repo := strings.TrimSpace(cfg.Repo)
	if repo == "" {
		return nil, errMissingRepo
	}

	trunk := strings.TrimSpace(cfg.Trunk)
	if trunk == "" {
		trunk = defaultTrunk
	}

	apiBaseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	rawBaseURL := strings.TrimRight(cfg.RawBaseURL, "/")
	if rawBaseURL == "" {
		rawBaseURL = defaultRawBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		owner:      owner,
		repo:       repo,
		token:      strings.TrimSpace(cfg.Token),
		trunk:      trunk,
		apiBaseURL: apiBaseURL,
		rawBaseURL: rawBaseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Trunk returns the configured baseline branch.
func (c *Client) Trunk() string {
	return c.trunk
}

// Branch is one branch as reported by the branches API.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
		URL string `json:"url"`
	} `json:"commit"`
	Protected bool `json:"protected"`
}

// CommitSignature is the author or committer stamp inside a commit.
type CommitSignature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Account is a GitHub account attached to a commit or contributor entry.
type Account struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// Commit is one commit as reported by the commits API. Author and
// Committer are nil when GitHub could not map the signature to an account.
type Commit struct {
	SHA    string `json:"sha"`
	Detail struct {
		Author    CommitSignature `json:"author"`
		Committer CommitSignature `json:"committer"`
		Message   string          `json:"message"`
	} `json:"commit"`
	Author    *Account `json:"author"`
	Committer *Account `json:"committer"`
	Parents   []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

// Contributor is one entry from the contributors API.
type Contributor struct {
	Login         string `json:"login"`
	AvatarURL     string `json:"avatar_url"`
	HTMLURL       string `json:"html_url"`
	Contributions int    `json:"contributions"`
}

// RepoMetadata is repository-level metadata for the header panels.
type RepoMetadata struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	OpenIssues    int       `json:"open_issues_count"`
	Watchers      int       `json:"watchers_count"`
	CreatedAt     time.Time `json:"created_at"`
	PushedAt      time.Time `json:"pushed_at"`
	DefaultBranch string    `json:"default_branch"`
	HTMLURL       string    `json:"html_url"`
}

// ListBranches pages through the branch collection and returns a
// deduplicated list with empty sentinel names dropped.
func (c *Client) ListBranches(ctx context.Context) ([]Branch, error) {
	seen := make(map[string]struct{})
	branches := make([]Branch, 0, branchesPerPage)

	for page := 1; page <= maxBranchPages; page++ {
		path := fmt.Sprintf("/repos/%s/%s/branches?per_page=%d&page=%d", c.owner, c.repo, branchesPerPage, page)
		var pageBranches []Branch
		if err := c.getJSON(ctx, path, &pageBranches); err != nil {
			return nil, err
		}
		for _, branch := range pageBranches {
			if branch.Name == "" {
				continue
			}
			if _, dup := seen[branch.Name]; dup {
				continue
			}
			seen[branch.Name] = struct{}{}
			branches = append(branches, branch)
		}
		if len(pageBranches) < branchesPerPage {
			break
		}
	}

	return branches, nil
}

// GetBranch looks up a single branch. A nil branch with a nil error means
// the branch does not exist upstream; a non-nil error means the lookup
// itself failed and says nothing about existence.
func (c *Client) GetBranch(ctx context.Context, name string) (*Branch, error) {
	path := fmt.Sprintf("/repos/%s/%s/branches/%s", c.owner, c.repo, escapeBranch(name))
	var branch Branch
	err := c.getJSON(ctx, path, &branch)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

// ListCommits returns the most recent commits on a branch, newest first.
func (c *Client) ListCommits(ctx context.Context, branch string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 30
	}
	path := fmt.Sprintf("/repos/%s/%s/commits?sha=%s&per_page=%d", c.owner, c.repo, url.QueryEscape(branch), limit)
	var commits []Commit
	if err := c.getJSON(ctx, path, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// CompareAheadCount returns how many commits a branch is ahead of trunk.
// Trunk itself always reports zero without an upstream call.
func (c *Client) CompareAheadCount(ctx context.Context, branch string) (int, error) {
	if branch == c.trunk {
		return 0, nil
	}
	path := fmt.Sprintf("/repos/%s/%s/compare/%s...%s", c.owner, c.repo, url.QueryEscape(c.trunk), escapeBranch(branch))
	var comparison struct {
		AheadBy  int `json:"ahead_by"`
		BehindBy int `json:"behind_by"`
	}
	if err := c.getJSON(ctx, path, &comparison); err != nil {
		return 0, err
	}
	return comparison.AheadBy, nil
}

// ListContributors returns the repository's contributors.
func (c *Client) ListContributors(ctx context.Context) ([]Contributor, error) {
	path := fmt.Sprintf("/repos/%s/%s/contributors?per_page=100", c.owner, c.repo)
	var contributors []Contributor
	if err := c.getJSON(ctx, path, &contributors); err != nil {
		return nil, err
	}
	return contributors, nil
}

// GetRepositoryMetadata returns repository-level metadata.
func (c *Client) GetRepositoryMetadata(ctx context.Context) (*RepoMetadata, error) {
	path := fmt.Sprintf("/repos/%s/%s", c.owner, c.repo)
	var meta RepoMetadata
	if err := c.getJSON(ctx, path, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// RawFile fetches a file from the raw content host. The caller owns the
// response body and must close it. Parameters are expected to be
// pre-validated; this method does not re-check them.
func (c *Client) RawFile(ctx context.Context, owner, repo, branch, path string) (*http.Response, error) {
	rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawBaseURL, owner, repo, branch, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

var errNotFound = errors.New("github: not found")

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", errNotFound, path)
	case response.StatusCode == http.StatusForbidden:
		var body struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(response.Body).Decode(&body); decodeErr == nil &&
			strings.Contains(strings.ToLower(body.Message), "rate limit") {
			return ErrRateLimited
		}
		return fmt.Errorf("github: status 403 for %s", path)
	case response.StatusCode != http.StatusOK:
		return fmt.Errorf("github: status %d for %s", response.StatusCode, path)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decoding %s: %w", path, err)
	}
	return nil
}

// escapeBranch percent-escapes a branch name for use in a URL path while
// keeping its slashes, which GitHub accepts in branch path segments.
func escapeBranch(name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
