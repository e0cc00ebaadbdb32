package proxy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	profileDocument = "index.html"

	// AssetEndpoint is the same-origin route the injected base tag points
	// at; every relative reference in a proxied document resolves there.
	AssetEndpoint = "/api/profile-asset"
)

var errMissingFetcher = errors.New("proxy: raw file fetcher is required")

// Fetcher fetches a file from the raw content host. Implemented by the
// GitHub client.
type Fetcher interface {
	RawFile(ctx context.Context, owner, repo, branch, path string) (*http.Response, error)
}

// Config bundles the dependencies for a proxy Service.
type Config struct {
	Fetcher Fetcher
	Logger  *zap.Logger
}

// Service fetches branch-hosted documents and assets and prepares them
// for sandboxed iframe embedding.
type Service struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewService constructs a Service with validated configuration.
func NewService(cfg Config) (*Service, error) {
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{fetcher: cfg.Fetcher, logger: logger}, nil
}

// RenderProfile fetches a branch's index.html and rewrites it for
// embedding. It always returns a renderable document: upstream absence
// and failures are swallowed into friendly placeholder pages so the
// embedding frame never shows a load error.
func (s *Service) RenderProfile(ctx context.Context, owner, repo, branch string) string {
	if branch == "" {
		branch = "main"
	}

	if !safeName.MatchString(owner) || !safeName.MatchString(repo) || !safeBranch.MatchString(branch) {
		return errorDocument(branch)
	}

	response, err := s.fetcher.RawFile(ctx, owner, repo, branch, profileDocument)
	if err != nil {
		s.logger.Warn("profile fetch failed",
			zap.String("branch", branch), zap.Error(err))
		return errorDocument(branch)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return missingProfileDocument(branch)
	case response.StatusCode != http.StatusOK:
		s.logger.Warn("profile fetch returned unexpected status",
			zap.String("branch", branch), zap.Int("status", response.StatusCode))
		return errorDocument(branch)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		s.logger.Warn("profile body read failed",
			zap.String("branch", branch), zap.Error(err))
		return errorDocument(branch)
	}

	return injectBase(string(body), baseTag(owner, repo, branch))
}

// baseTag builds the <base> element scoped to the asset proxy so every
// relative href/src in the document resolves through it. Absolute,
// protocol-relative, fragment, mailto: and data: references ignore the
// base per the HTML resolution rules and pass through untouched.
func baseTag(owner, repo, branch string) string {
	query := url.Values{}
	query.Set("owner", owner)
	query.Set("repo", repo)
	query.Set("branch", branch)
	return fmt.Sprintf(`<base href="%s?%s&path=">`, AssetEndpoint, query.Encode())
}

// injectBase places the base tag immediately after the document's
// opening <head> tag, creating one when the document has none.
func injectBase(document, tag string) string {
	if at, end := findHeadOpen(document); at >= 0 {
		return document[:end] + tag + document[end:]
	}
	return "<head>" + tag + "</head>" + document
}

// findHeadOpen locates the opening <head> tag, tolerating attribute lists
// and casing but not matching <header>. Returns the tag's start offset
// and the offset just past its closing bracket, or -1 when absent.
func findHeadOpen(document string) (start, end int) {
	lower := strings.ToLower(document)
	offset := 0
	for {
		at := strings.Index(lower[offset:], "<head")
		if at < 0 {
			return -1, -1
		}
		at += offset
		rest := lower[at+len("<head"):]
		if rest == "" {
			return -1, -1
		}
		switch rest[0] {
		case '>', ' ', '\t', '\n', '\r':
			bracket := strings.IndexByte(document[at:], '>')
			if bracket < 0 {
				return -1, -1
			}
			return at, at + bracket + 1
		}
		offset = at + len("<head")
	}
}

func missingProfileDocument(branch string) string {
	name := html.EscapeString(branch)
	return fmt.Sprintf(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>%s · mybranch.fun</title></head>
<body style="font-family:monospace;background:#0d1117;color:#c9d1d9;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0">
<div style="text-align:center;max-width:32rem;padding:2rem">
<h1 style="font-size:1.25rem">%s has no page yet</h1>
<p>Add an <code>index.html</code> to the <code>%s</code> branch and it will show up here.</p>
</div>
</body>
</html>`, name, name, name)
}

func errorDocument(branch string) string {
	name := html.EscapeString(branch)
	return fmt.Sprintf(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>%s · mybranch.fun</title></head>
<body style="font-family:monospace;background:#0d1117;color:#c9d1d9;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0">
<div style="text-align:center;max-width:32rem;padding:2rem">
<h1 style="font-size:1.25rem">couldn't load %s right now</h1>
<p>The upstream host didn't answer. Refresh in a moment.</p>
</div>
</body>
</html>`, name, name)
}
