package identity

import (
	"errors"
	"testing"
)

func newTestResolver(testContext *testing.T) *Resolver {
	testContext.Helper()
	resolver, err := NewResolver(Config{RootIdentity: "MFDOGE"})
	if err != nil {
		testContext.Fatalf("failed to construct resolver: %v", err)
	}
	return resolver
}

func TestNormalizeStripsSeparatorsAndCase(testContext *testing.T) {
	cases := map[string]string{
		"MF-Doge":    "mfdoge",
		"mf_doge":    "mfdoge",
		"group/cats": "groupcats",
		"Alice99":    "alice99",
		"":           "",
		"---":        "",
	}
	for input, expected := range cases {
		if got := Normalize(input); got != expected {
			testContext.Fatalf("Normalize(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestNormalizeIsIdempotent(testContext *testing.T) {
	inputs := []string{"MF-Doge", "group/cats", "alice", "MFDOGE69", "a.b.c"}
	for _, input := range inputs {
		once := Normalize(input)
		if twice := Normalize(once); twice != once {
			testContext.Fatalf("Normalize not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestResolveCanonicalRoot(testContext *testing.T) {
	resolver := newTestResolver(testContext)

	resolution, err := resolver.Resolve("MFDOGE")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if !resolution.IsRoot {
		testContext.Fatalf("expected root resolution, got %+v", resolution)
	}
	if resolution.Canonical != "MFDOGE" {
		testContext.Fatalf("unexpected canonical name: %q", resolution.Canonical)
	}
}

func TestResolveNonCanonicalRootSpellingRequestsRedirect(testContext *testing.T) {
	resolver := newTestResolver(testContext)

	for _, spelling := range []string{"mfdoge", "MfDoge", "mf-doge", "MF_DOGE"} {
		resolution, err := resolver.Resolve(spelling)
		if !errors.Is(err, ErrNotCanonical) {
			testContext.Fatalf("Resolve(%q): expected ErrNotCanonical, got %v", spelling, err)
		}
		if resolution.Canonical != "MFDOGE" {
			testContext.Fatalf("Resolve(%q): expected canonical MFDOGE, got %q", spelling, resolution.Canonical)
		}
	}
}

func TestResolveRejectsReservedLookalikes(testContext *testing.T) {
	resolver := newTestResolver(testContext)

	for _, name := range []string{"mfdogex", "MFDOGE69", "the-real-mfdoge", "mf.doge"} {
		if _, err := resolver.Resolve(name); !errors.Is(err, ErrReserved) {
			testContext.Fatalf("Resolve(%q): expected ErrReserved, got %v", name, err)
		}
	}
}

func TestResolveAcceptsOrdinaryNames(testContext *testing.T) {
	resolver := newTestResolver(testContext)

	resolution, err := resolver.Resolve("alice")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if resolution.IsRoot || resolution.IsGroup {
		testContext.Fatalf("unexpected flags for plain name: %+v", resolution)
	}
	if resolution.Canonical != "alice" {
		testContext.Fatalf("unexpected canonical name: %q", resolution.Canonical)
	}
}

func TestResolveFlagsGroupBranches(testContext *testing.T) {
	resolver := newTestResolver(testContext)

	for _, name := range []string{"group/cats", "club/chess"} {
		resolution, err := resolver.Resolve(name)
		if err != nil {
			testContext.Fatalf("Resolve(%q): unexpected error: %v", name, err)
		}
		if !resolution.IsGroup {
			testContext.Fatalf("Resolve(%q): expected group flag", name)
		}
	}

	// Prefix match is case-sensitive.
	resolution, err := resolver.Resolve("Group/cats")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if resolution.IsGroup {
		testContext.Fatalf("uppercase prefix must not flag a group")
	}
}

func TestResolveRejectsEmptyName(testContext *testing.T) {
	resolver := newTestResolver(testContext)

	for _, name := range []string{"", "   "} {
		if _, err := resolver.Resolve(name); !errors.Is(err, ErrInvalidName) {
			testContext.Fatalf("Resolve(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestDisplayNameStripsCommunityPrefix(testContext *testing.T) {
	cases := map[string]string{
		"group/cats": "cats",
		"club/chess": "chess",
		"alice":      "alice",
	}
	for input, expected := range cases {
		if got := DisplayName(input); got != expected {
			testContext.Fatalf("DisplayName(%q) = %q, expected %q", input, got, expected)
		}
	}
}
