package identity

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidName indicates an empty or blank branch name.
	ErrInvalidName = errors.New("identity: branch name must not be empty")
	// ErrReserved indicates the name collides with a reserved identity.
	ErrReserved = errors.New("identity: branch name is reserved")
	// ErrNotCanonical indicates a non-canonical spelling of the root
	// identity; callers must redirect to Resolution.Canonical.
	ErrNotCanonical = errors.New("identity: not the canonical root spelling")

	errMissingRootIdentity = errors.New("identity: root identity is required")
)

const (
	groupPrefix = "group/"
	clubPrefix  = "club/"
)

// defaultReserved lists spellings that must never resolve to a
// requester-controlled profile. The root identity itself is always
// added on top of these.
var defaultReserved = []string{
	"mf-doge",
	"mf_doge",
	"mfdogex",
	"mfdoge69",
}

// Config bundles the inputs for a Resolver.
type Config struct {
	// RootIdentity is the canonical spelling of the privileged branch.
	RootIdentity string
	// Reserved overrides the default reserved set when non-empty.
	// Entries are normalized before comparison.
	Reserved []string
}

// Resolution describes where a requested branch name leads.
type Resolution struct {
	// Canonical is the branch name the caller should use. It differs
	// from the requested name only for the root identity.
	Canonical string
	IsRoot    bool
	IsGroup   bool
}

// Resolver validates requested branch names against the reserved set
// and canonicalizes the root identity's casing. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	root      string
	rootToken string
	reserved  []string
}

// NewResolver constructs a Resolver from configuration.
func NewResolver(cfg Config) (*Resolver, error) {
	root := strings.TrimSpace(cfg.RootIdentity)
	if root == "" {
		return nil, errMissingRootIdentity
	}

	source := cfg.Reserved
	if len(source) == 0 {
		source = defaultReserved
	}

	reserved := make([]string, 0, len(source)+1)
	seen := map[string]struct{}{}
	for _, entry := range append([]string{root}, source...) {
		token := Normalize(entry)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		reserved = append(reserved, token)
	}

	return &Resolver{
		root:      root,
		rootToken: Normalize(root),
		reserved:  reserved,
	}, nil
}

// Normalize lowercases a name and strips every non-alphanumeric rune.
// Normalization is idempotent.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve maps a requested branch name to its resolution.
//
// The root identity renders only under its exact canonical casing; any
// other spelling that normalizes to the root token yields ErrNotCanonical
// with the canonical name filled in so the caller can redirect. Names
// whose normalized form equals or contains a reserved token are rejected
// outright.
func (r *Resolver) Resolve(requested string) (Resolution, error) {
	if strings.TrimSpace(requested) == "" {
		return Resolution{}, ErrInvalidName
	}

	normalized := Normalize(requested)
	if normalized == r.rootToken {
		if requested != r.root {
			return Resolution{Canonical: r.root}, ErrNotCanonical
		}
		return Resolution{Canonical: r.root, IsRoot: true}, nil
	}

	for _, token := range r.reserved {
		if strings.Contains(normalized, token) {
			return Resolution{}, ErrReserved
		}
	}

	return Resolution{
		Canonical: requested,
		IsGroup:   IsGroup(requested),
	}, nil
}

// IsGroup reports whether a branch name carries a community prefix.
// The prefix match is exact and case-sensitive.
func IsGroup(name string) bool {
	return strings.HasPrefix(name, groupPrefix) || strings.HasPrefix(name, clubPrefix)
}

// DisplayName strips the community prefix for presentation.
func DisplayName(name string) string {
	if strings.HasPrefix(name, groupPrefix) {
		return strings.TrimPrefix(name, groupPrefix)
	}
	return strings.TrimPrefix(name, clubPrefix)
}
