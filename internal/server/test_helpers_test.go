package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mybranchfun/mybranch/internal/github"
	"github.com/mybranchfun/mybranch/internal/identity"
	"github.com/mybranchfun/mybranch/internal/proxy"
	"github.com/mybranchfun/mybranch/internal/stats"
)

type fakeGateway struct {
	branches        []github.Branch
	listErr         error
	branchByName    map[string]*github.Branch
	getErr          error
	commits         map[string][]github.Commit
	commitsErr      error
	contributors    []github.Contributor
	contributorsErr error
	meta            *github.RepoMetadata
	metaErr         error
}

func (f *fakeGateway) ListBranches(_ context.Context) ([]github.Branch, error) {
	return f.branches, f.listErr
}

func (f *fakeGateway) GetBranch(_ context.Context, name string) (*github.Branch, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.branchByName[name], nil
}

func (f *fakeGateway) ListCommits(_ context.Context, branch string, _ int) ([]github.Commit, error) {
	if f.commitsErr != nil {
		return nil, f.commitsErr
	}
	return f.commits[branch], nil
}

func (f *fakeGateway) ListContributors(_ context.Context) ([]github.Contributor, error) {
	return f.contributors, f.contributorsErr
}

func (f *fakeGateway) GetRepositoryMetadata(_ context.Context) (*github.RepoMetadata, error) {
	return f.meta, f.metaErr
}

type fakeStats struct {
	stats []stats.BranchStat
	err   error
}

func (f *fakeStats) ComputeAllStats(_ context.Context) ([]stats.BranchStat, error) {
	return f.stats, f.err
}

type fakeProxy struct {
	document string
	asset    *proxy.Asset
	assetErr error
}

func (f *fakeProxy) RenderProfile(_ context.Context, _, _, _ string) string {
	return f.document
}

func (f *fakeProxy) FetchAsset(_ context.Context, _ proxy.AssetRequest) (*proxy.Asset, error) {
	return f.asset, f.assetErr
}

type routerOptions struct {
	gateway Gateway
	stats   StatsProvider
	proxy   ProfileProxy
}

func newTestRouter(testContext *testing.T, opts routerOptions) http.Handler {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	if opts.gateway == nil {
		opts.gateway = &fakeGateway{}
	}
	if opts.stats == nil {
		opts.stats = &fakeStats{}
	}
	if opts.proxy == nil {
		opts.proxy = &fakeProxy{}
	}

	resolver, err := identity.NewResolver(identity.Config{RootIdentity: "MFDOGE"})
	if err != nil {
		testContext.Fatalf("failed to construct resolver: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Gateway:   opts.gateway,
		Stats:     opts.stats,
		Proxy:     opts.proxy,
		Resolver:  resolver,
		RepoOwner: "acme",
		RepoName:  "tree",
	})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func performRequest(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, target, http.NoBody)
	handler.ServeHTTP(recorder, request)
	return recorder
}
