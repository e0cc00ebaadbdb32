package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
)

var (
	// ErrMissingParams indicates a required asset parameter was absent.
	ErrMissingParams = errors.New("proxy: owner, repo and path are required")
	// ErrUnsafeParams indicates a parameter failed whitelist validation;
	// no upstream request is made with such values.
	ErrUnsafeParams = errors.New("proxy: parameters contain disallowed characters")
	// ErrAssetNotFound indicates the upstream host has no such file.
	ErrAssetNotFound = errors.New("proxy: asset not found")
	// ErrUpstream indicates the upstream fetch itself failed.
	ErrUpstream = errors.New("proxy: upstream fetch failed")
)

var (
	safeName   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	safeBranch = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	safePath   = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
)

// mimeByExtension maps known asset extensions to content types. Unknown
// extensions fall back to application/octet-stream.
var mimeByExtension = map[string]string{
	"css":   "text/css",
	"js":    "application/javascript",
	"png":   "image/png",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"gif":   "image/gif",
	"svg":   "image/svg+xml",
	"webp":  "image/webp",
	"ico":   "image/x-icon",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"json":  "application/json",
	"txt":   "text/plain",
	"html":  "text/html; charset=utf-8",
	"mp3":   "audio/mpeg",
	"ogg":   "audio/ogg",
	"mp4":   "video/mp4",
	"webm":  "video/webm",
}

const defaultContentType = "application/octet-stream"

// AssetRequest identifies one file on one branch.
type AssetRequest struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
}

// Asset is a proxied file ready to stream. The caller owns Body and
// must close it.
type Asset struct {
	ContentType string
	Body        io.ReadCloser
}

// Validate applies the parameter whitelist. It must pass before any
// upstream call; a crafted owner, branch or path never leaves this
// process.
func (r AssetRequest) Validate() error {
	if r.Owner == "" || r.Repo == "" || r.Path == "" {
		return ErrMissingParams
	}
	if !safeName.MatchString(r.Owner) || !safeName.MatchString(r.Repo) {
		return ErrUnsafeParams
	}
	branch := r.Branch
	if branch == "" {
		branch = "main"
	}
	if !safeBranch.MatchString(branch) {
		return ErrUnsafeParams
	}
	if !safePath.MatchString(r.Path) || strings.Contains(r.Path, "..") {
		return ErrUnsafeParams
	}
	return nil
}

// FetchAsset streams one branch-hosted file through the proxy with a
// content type inferred from its extension.
func (s *Service) FetchAsset(ctx context.Context, request AssetRequest) (*Asset, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	branch := request.Branch
	if branch == "" {
		branch = "main"
	}

	response, err := s.fetcher.RawFile(ctx, request.Owner, request.Repo, branch, request.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	switch {
	case response.StatusCode == http.StatusNotFound:
		response.Body.Close()
		return nil, ErrAssetNotFound
	case response.StatusCode != http.StatusOK:
		response.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, response.StatusCode)
	}

	return &Asset{
		ContentType: ContentTypeFor(request.Path),
		Body:        response.Body,
	}, nil
}

// ContentTypeFor infers a MIME type from the file extension.
func ContentTypeFor(assetPath string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(assetPath), "."))
	if mime, ok := mimeByExtension[ext]; ok {
		return mime
	}
	return defaultContentType
}
