package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mybranchfun/mybranch/internal/github"
	"github.com/mybranchfun/mybranch/internal/identity"
	"github.com/mybranchfun/mybranch/internal/proxy"
	"github.com/mybranchfun/mybranch/internal/stats"
)

const (
	profileCommitLimit = 20

	cacheBranches = "public, s-maxage=60, stale-while-revalidate=300"
	cacheStats    = "public, s-maxage=120, stale-while-revalidate=600"
	cacheRepoMeta = "public, s-maxage=300, stale-while-revalidate=600"
	cacheProfile  = "public, s-maxage=60, stale-while-revalidate=300"
	cacheAssets   = "public, s-maxage=300, stale-while-revalidate=3600"
)

var (
	errMissingGateway  = errors.New("gateway dependency required")
	errMissingStats    = errors.New("stats aggregator dependency required")
	errMissingProxy    = errors.New("profile proxy dependency required")
	errMissingResolver = errors.New("name resolver dependency required")
)

// Gateway is the slice of the GitHub client the handlers consume.
type Gateway interface {
	ListBranches(ctx context.Context) ([]github.Branch, error)
	GetBranch(ctx context.Context, name string) (*github.Branch, error)
	ListCommits(ctx context.Context, branch string, limit int) ([]github.Commit, error)
	ListContributors(ctx context.Context) ([]github.Contributor, error)
	GetRepositoryMetadata(ctx context.Context) (*github.RepoMetadata, error)
}

// StatsProvider computes the ranked leaderboard.
type StatsProvider interface {
	ComputeAllStats(ctx context.Context) ([]stats.BranchStat, error)
}

// ProfileProxy renders branch documents and streams branch assets.
type ProfileProxy interface {
	RenderProfile(ctx context.Context, owner, repo, branch string) string
	FetchAsset(ctx context.Context, request proxy.AssetRequest) (*proxy.Asset, error)
}

// NameResolver gates profile routes against the reserved set.
type NameResolver interface {
	Resolve(requested string) (identity.Resolution, error)
}

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	Gateway   Gateway
	Stats     StatsProvider
	Proxy     ProfileProxy
	Resolver  NameResolver
	RepoOwner string
	RepoName  string
	Logger    *zap.Logger
}

// NewHTTPHandler wires the routes and middleware.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}
	if deps.Stats == nil {
		return nil, errMissingStats
	}
	if deps.Proxy == nil {
		return nil, errMissingProxy
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		gateway:   deps.Gateway,
		stats:     deps.Stats,
		proxy:     deps.Proxy,
		resolver:  deps.Resolver,
		repoOwner: deps.RepoOwner,
		repoName:  deps.RepoName,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealthz)
	router.GET("/api/branches", handler.handleListBranches)
	router.GET("/api/stats", handler.handleStats)
	router.GET("/api/repo", handler.handleRepoMetadata)
	router.GET("/api/contributors", handler.handleContributors)
	router.GET("/api/profile-html", handler.handleProfileHTML)
	router.GET("/api/profile-asset", handler.handleProfileAsset)
	router.GET("/profiles/*branch", handler.handleProfilePage)

	return router, nil
}

type httpHandler struct {
	gateway   Gateway
	stats     StatsProvider
	proxy     ProfileProxy
	resolver  NameResolver
	repoOwner string
	repoName  string
	logger    *zap.Logger
}

func (h *httpHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type branchPayload struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleListBranches(c *gin.Context) {
	branches, err := h.gateway.ListBranches(c.Request.Context())
	if err != nil {
		h.logger.Error("branch listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, []branchPayload{})
		return
	}

	payload := make([]branchPayload, 0, len(branches))
	for _, branch := range branches {
		payload = append(payload, branchPayload{Name: branch.Name})
	}
	c.Header("Cache-Control", cacheBranches)
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleStats(c *gin.Context) {
	allStats, err := h.stats.ComputeAllStats(c.Request.Context())
	if err != nil {
		if errors.Is(err, github.ErrRateLimited) {
			h.logger.Warn("stats refused by rate limit", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "rate_limited",
				"hint":  "configure a GitHub token to raise the API rate limit",
			})
			return
		}
		h.logger.Error("stats aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.Header("Cache-Control", cacheStats)
	c.JSON(http.StatusOK, allStats)
}

func (h *httpHandler) handleRepoMetadata(c *gin.Context) {
	meta, err := h.gateway.GetRepositoryMetadata(c.Request.Context())
	if err != nil {
		h.logger.Error("repository metadata fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load repository"})
		return
	}

	c.Header("Cache-Control", cacheRepoMeta)
	c.JSON(http.StatusOK, meta)
}

func (h *httpHandler) handleContributors(c *gin.Context) {
	contributors, err := h.gateway.ListContributors(c.Request.Context())
	if err != nil {
		h.logger.Error("contributor listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, []github.Contributor{})
		return
	}

	c.Header("Cache-Control", cacheRepoMeta)
	c.JSON(http.StatusOK, contributors)
}

// handleProfileHTML always answers 200 with a renderable document. The
// consumer is a sandboxed iframe with no error-handling UI, so upstream
// failures become content rather than status codes.
func (h *httpHandler) handleProfileHTML(c *gin.Context) {
	owner := c.Query("owner")
	repo := c.Query("repo")
	branch := c.DefaultQuery("branch", "main")

	document := h.proxy.RenderProfile(c.Request.Context(), owner, repo, branch)

	c.Header("Cache-Control", cacheProfile)
	c.Header("X-Robots-Tag", "noindex")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(document))
}

func (h *httpHandler) handleProfileAsset(c *gin.Context) {
	request := proxy.AssetRequest{
		Owner:  c.Query("owner"),
		Repo:   c.Query("repo"),
		Branch: c.DefaultQuery("branch", "main"),
		Path:   c.Query("path"),
	}

	asset, err := h.proxy.FetchAsset(c.Request.Context(), request)
	switch {
	case errors.Is(err, proxy.ErrMissingParams):
		c.String(http.StatusBadRequest, "Missing parameters")
		return
	case errors.Is(err, proxy.ErrUnsafeParams):
		c.String(http.StatusBadRequest, "Invalid parameters")
		return
	case errors.Is(err, proxy.ErrAssetNotFound):
		c.String(http.StatusNotFound, "Not found")
		return
	case err != nil:
		h.logger.Warn("asset fetch failed", zap.String("path", request.Path), zap.Error(err))
		c.String(http.StatusBadGateway, "Fetch error")
		return
	}
	defer asset.Body.Close()

	c.Header("Cache-Control", cacheAssets)
	c.Header("Content-Type", asset.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, asset.Body); err != nil {
		h.logger.Debug("asset stream interrupted", zap.String("path", request.Path), zap.Error(err))
	}
}

type profileCommitPayload struct {
	SHA         string  `json:"sha"`
	Message     string  `json:"message"`
	Date        string  `json:"date"`
	AuthorLogin *string `json:"authorLogin"`
}

type profilePayload struct {
	Branch      string                 `json:"branch"`
	DisplayName string                 `json:"displayName"`
	IsRoot      bool                   `json:"isRoot"`
	IsGroup     bool                   `json:"isGroup"`
	HeadSHA     string                 `json:"headSha"`
	LastUpdated string                 `json:"lastUpdated"`
	Commits     []profileCommitPayload `json:"commits"`
	HTMLPath    string                 `json:"htmlPath"`
}

// handleProfilePage resolves a requested branch name and returns the
// profile data the page renders around the embedded frame. Absence and
// transient upstream failure are kept distinct: only a confirmed 404
// yields not-found, anything else is a retryable 503.
func (h *httpHandler) handleProfilePage(c *gin.Context) {
	requested := strings.TrimPrefix(c.Param("branch"), "/")

	resolution, err := h.resolver.Resolve(requested)
	switch {
	case errors.Is(err, identity.ErrNotCanonical):
		c.Redirect(http.StatusMovedPermanently, "/profiles/"+resolution.Canonical)
		return
	case errors.Is(err, identity.ErrReserved), errors.Is(err, identity.ErrInvalidName):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case err != nil:
		h.logger.Error("name resolution failed", zap.String("branch", requested), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution_failed"})
		return
	}

	branch, err := h.gateway.GetBranch(c.Request.Context(), resolution.Canonical)
	if err != nil {
		h.logger.Warn("branch lookup failed", zap.String("branch", resolution.Canonical), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream_unavailable"})
		return
	}
	if branch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	commits, err := h.gateway.ListCommits(c.Request.Context(), branch.Name, profileCommitLimit)
	if err != nil {
		// Non-fatal: the page renders with an empty history.
		h.logger.Warn("commit listing failed", zap.String("branch", branch.Name), zap.Error(err))
		commits = nil
	}

	payload := profilePayload{
		Branch:      branch.Name,
		DisplayName: identity.DisplayName(branch.Name),
		IsRoot:      resolution.IsRoot,
		IsGroup:     resolution.IsGroup,
		HeadSHA:     branch.Commit.SHA,
		LastUpdated: "unknown",
		Commits:     make([]profileCommitPayload, 0, len(commits)),
		HTMLPath:    h.profileHTMLPath(branch.Name),
	}
	if len(commits) > 0 {
		payload.LastUpdated = commits[0].Detail.Author.Date.UTC().Format(time.RFC3339)
	}
	for _, commit := range commits {
		entry := profileCommitPayload{
			SHA:     commit.SHA,
			Message: firstLine(commit.Detail.Message),
			Date:    commit.Detail.Author.Date.UTC().Format(time.RFC3339),
		}
		if commit.Author != nil {
			login := commit.Author.Login
			entry.AuthorLogin = &login
		}
		payload.Commits = append(payload.Commits, entry)
	}

	c.Header("Cache-Control", cacheProfile)
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) profileHTMLPath(branch string) string {
	query := url.Values{}
	query.Set("owner", h.repoOwner)
	query.Set("repo", h.repoName)
	query.Set("branch", branch)
	return "/api/profile-html?" + query.Encode()
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	if len(line) > 72 {
		return line[:72]
	}
	return line
}
