package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mybranchfun/mybranch/internal/github"
	"github.com/mybranchfun/mybranch/internal/identity"
)

const (
	defaultConcurrency = 16
	shortSHALength     = 7
	messageLineLimit   = 72

	// Every branch costs one commits lookup plus one compare call.
	callsPerBranch = 2
)

var (
	errMissingGateway = errors.New("stats: gateway is required")
)

// Gateway is the slice of the GitHub client the aggregator consumes.
type Gateway interface {
	ListBranches(ctx context.Context) ([]github.Branch, error)
	ListCommits(ctx context.Context, branch string, limit int) ([]github.Commit, error)
	CompareAheadCount(ctx context.Context, branch string) (int, error)
}

// BudgetGuard reserves upstream call allowance before a fan-out.
type BudgetGuard interface {
	Take(n int) bool
}

// LastCommit summarizes the newest commit on a branch for display.
type LastCommit struct {
	SHA          string  `json:"sha"`
	Date         string  `json:"date"`
	Message      string  `json:"message"`
	Author       string  `json:"author"`
	AuthorLogin  *string `json:"authorLogin"`
	AuthorAvatar *string `json:"authorAvatar"`
}

// BranchStat is one leaderboard row. CommitCount is the ahead-of-trunk
// approximation, zero for the trunk itself. ParentBranch is always the
// trunk for non-trunk branches, an acknowledged simplification rather
// than a merge-base computation.
type BranchStat struct {
	Name         string     `json:"name"`
	SHA          string     `json:"sha"`
	IsRoot       bool       `json:"isRoot"`
	IsGroup      bool       `json:"isGroup"`
	LastCommit   LastCommit `json:"lastCommit"`
	CommitCount  int        `json:"commitCount"`
	ParentBranch *string    `json:"parentBranch"`
}

// Config bundles the dependencies for an Aggregator.
type Config struct {
	Gateway      Gateway
	Trunk        string
	RootIdentity string
	Budget       BudgetGuard
	Concurrency  int
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Aggregator composes per-branch commit metadata and ahead-counts into
// the ranked list behind the leaderboard and graph views.
type Aggregator struct {
	gateway     Gateway
	trunk       string
	root        string
	budget      BudgetGuard
	concurrency int
	clock       func() time.Time
	logger      *zap.Logger
}

// NewAggregator constructs an Aggregator with validated configuration.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Gateway == nil {
		return nil, errMissingGateway
	}

	trunk := strings.TrimSpace(cfg.Trunk)
	if trunk == "" {
		trunk = "main"
	}

	root := strings.TrimSpace(cfg.RootIdentity)
	if root == "" {
		root = trunk
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		gateway:     cfg.Gateway,
		trunk:       trunk,
		root:        root,
		budget:      cfg.Budget,
		concurrency: concurrency,
		clock:       clock,
		logger:      logger,
	}, nil
}

// ComputeAllStats assembles one BranchStat per branch. A single branch's
// commit or compare failure degrades that branch to placeholder values;
// it never aborts the aggregation. The returned order is total and
// stable: root first, then descending commit count, ties by name.
func (a *Aggregator) ComputeAllStats(ctx context.Context) ([]BranchStat, error) {
	branches, err := a.gateway.ListBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: listing branches: %w", err)
	}

	if a.budget != nil && !a.budget.Take(len(branches)*callsPerBranch) {
		return nil, fmt.Errorf("stats: upstream call budget exhausted: %w", github.ErrRateLimited)
	}

	results := make([]BranchStat, len(branches))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)
	for i, branch := range branches {
		group.Go(func() error {
			results[i] = a.computeOne(groupCtx, branch)
			return nil
		})
	}
	// Workers only record per-branch outcomes; the group never fails.
	_ = group.Wait()

	sortStats(results)
	return results, nil
}

func (a *Aggregator) computeOne(ctx context.Context, branch github.Branch) BranchStat {
	stat := BranchStat{
		Name:    branch.Name,
		SHA:     branch.Commit.SHA,
		IsRoot:  branch.Name == a.root,
		IsGroup: identity.IsGroup(branch.Name),
	}
	if branch.Name != a.trunk {
		trunk := a.trunk
		stat.ParentBranch = &trunk
	}

	commits, err := a.gateway.ListCommits(ctx, branch.Name, 1)
	if err != nil {
		a.logger.Warn("commit lookup failed, using placeholder",
			zap.String("branch", branch.Name), zap.Error(err))
	}
	if len(commits) > 0 {
		last := commits[0]
		stat.LastCommit = LastCommit{
			SHA:     shortSHA(last.SHA),
			Date:    last.Detail.Author.Date.UTC().Format(time.RFC3339),
			Message: firstLine(last.Detail.Message),
			Author:  last.Detail.Author.Name,
		}
		if last.Author != nil {
			login := last.Author.Login
			avatar := last.Author.AvatarURL
			stat.LastCommit.AuthorLogin = &login
			stat.LastCommit.AuthorAvatar = &avatar
		}
	} else {
		// New branch with no reachable history yet.
		stat.LastCommit = LastCommit{
			SHA:     shortSHA(branch.Commit.SHA),
			Date:    a.clock().UTC().Format(time.RFC3339),
			Message: "initial profile",
			Author:  branch.Name,
		}
	}

	count, err := a.gateway.CompareAheadCount(ctx, branch.Name)
	if err != nil {
		a.logger.Warn("ahead-count lookup failed, reporting zero",
			zap.String("branch", branch.Name), zap.Error(err))
		count = 0
	}
	stat.CommitCount = count

	return stat
}

func sortStats(stats []BranchStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].IsRoot != stats[j].IsRoot {
			return stats[i].IsRoot
		}
		if stats[i].CommitCount != stats[j].CommitCount {
			return stats[i].CommitCount > stats[j].CommitCount
		}
		return stats[i].Name < stats[j].Name
	})
}

func shortSHA(sha string) string {
	if len(sha) <= shortSHALength {
		return sha
	}
	return sha[:shortSHALength]
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	if len(line) > messageLineLimit {
		return line[:messageLineLimit]
	}
	return line
}
