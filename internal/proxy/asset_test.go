package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestFetchAssetRejectsMissingParameters(testContext *testing.T) {
	fetcher := &fakeFetcher{status: http.StatusOK}
	service := newTestService(testContext, fetcher)

	requests := []AssetRequest{
		{Repo: "tree", Path: "pic.png"},
		{Owner: "acme", Path: "pic.png"},
		{Owner: "acme", Repo: "tree"},
	}
	for _, request := range requests {
		if _, err := service.FetchAsset(context.Background(), request); !errors.Is(err, ErrMissingParams) {
			testContext.Fatalf("%+v: expected ErrMissingParams, got %v", request, err)
		}
	}
	if fetcher.calls != 0 {
		testContext.Fatalf("missing parameters must not reach upstream")
	}
}

func TestFetchAssetRejectsUnsafeParametersBeforeUpstream(testContext *testing.T) {
	fetcher := &fakeFetcher{status: http.StatusOK}
	service := newTestService(testContext, fetcher)

	requests := []AssetRequest{
		{Owner: "acme", Repo: "tree", Path: "../../etc/passwd"},
		{Owner: "acme", Repo: "tree", Path: "a/../b.png"},
		{Owner: "acme/x", Repo: "tree", Path: "pic.png"},
		{Owner: "acme", Repo: "tr ee", Path: "pic.png"},
		{Owner: "ac me", Repo: "tree", Path: "pic.png"},
		{Owner: "acme", Repo: "tree", Branch: "br$nch", Path: "pic.png"},
		{Owner: "acme", Repo: "tree", Path: "pic.png?x=1"},
	}
	for _, request := range requests {
		if _, err := service.FetchAsset(context.Background(), request); !errors.Is(err, ErrUnsafeParams) {
			testContext.Fatalf("%+v: expected ErrUnsafeParams, got %v", request, err)
		}
	}
	if fetcher.calls != 0 {
		testContext.Fatalf("unsafe parameters must never reach upstream, got %d calls", fetcher.calls)
	}
}

func TestFetchAssetStreamsBodyWithInferredContentType(testContext *testing.T) {
	fetcher := &fakeFetcher{status: http.StatusOK, body: "png-bytes"}
	service := newTestService(testContext, fetcher)

	asset, err := service.FetchAsset(context.Background(), AssetRequest{
		Owner: "acme", Repo: "tree", Branch: "alice", Path: "img/pic.png",
	})
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	defer asset.Body.Close()

	if asset.ContentType != "image/png" {
		testContext.Fatalf("unexpected content type: %q", asset.ContentType)
	}
	body, err := io.ReadAll(asset.Body)
	if err != nil {
		testContext.Fatalf("failed to read asset body: %v", err)
	}
	if string(body) != "png-bytes" {
		testContext.Fatalf("unexpected body: %q", body)
	}
	if fetcher.lastURL != "acme/tree/alice/img/pic.png" {
		testContext.Fatalf("unexpected upstream request: %s", fetcher.lastURL)
	}
}

func TestFetchAssetMapsUpstreamStatuses(testContext *testing.T) {
	notFound := &fakeFetcher{status: http.StatusNotFound}
	service := newTestService(testContext, notFound)
	if _, err := service.FetchAsset(context.Background(), AssetRequest{
		Owner: "acme", Repo: "tree", Path: "pic.png",
	}); !errors.Is(err, ErrAssetNotFound) {
		testContext.Fatalf("expected ErrAssetNotFound, got %v", err)
	}

	flaky := &fakeFetcher{err: errors.New("connection reset")}
	service = newTestService(testContext, flaky)
	if _, err := service.FetchAsset(context.Background(), AssetRequest{
		Owner: "acme", Repo: "tree", Path: "pic.png",
	}); !errors.Is(err, ErrUpstream) {
		testContext.Fatalf("expected ErrUpstream for network failure, got %v", err)
	}

	serverError := &fakeFetcher{status: http.StatusInternalServerError}
	service = newTestService(testContext, serverError)
	if _, err := service.FetchAsset(context.Background(), AssetRequest{
		Owner: "acme", Repo: "tree", Path: "pic.png",
	}); !errors.Is(err, ErrUpstream) {
		testContext.Fatalf("expected ErrUpstream for upstream 5xx, got %v", err)
	}
}

func TestContentTypeForFallsBackToOctetStream(testContext *testing.T) {
	cases := map[string]string{
		"style.css":     "text/css",
		"app.JS":        "application/javascript",
		"font.woff2":    "font/woff2",
		"README":        defaultContentType,
		"archive.xyz":   defaultContentType,
		"music/top.mp3": "audio/mpeg",
	}
	for input, expected := range cases {
		if got := ContentTypeFor(input); got != expected {
			testContext.Fatalf("ContentTypeFor(%q) = %q, expected %q", input, got, expected)
		}
	}
}
