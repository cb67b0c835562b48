package variables

import "testing"

func TestResolveSubstitutesPresentValue(t *testing.T) {
	got := Resolve("host=${HOST}", map[string]string{"HOST": "db.internal"})
	if got != "host=db.internal" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveFallsBackToDefaultWhenMissing(t *testing.T) {
	got := Resolve("port=${PORT:-5432}", map[string]string{})
	if got != "port=5432" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveFallsBackToDefaultWhenEmpty(t *testing.T) {
	got := Resolve("port=${PORT:-5432}", map[string]string{"PORT": ""})
	if got != "port=5432" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveDefaultClauseEmptyWhenAbsent(t *testing.T) {
	got := Resolve("tag=${TAG:-}", map[string]string{})
	if got != "tag=" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveNoDefaultAndMissingSubstitutesEmpty(t *testing.T) {
	got := Resolve("x=${MISSING}", map[string]string{})
	if got != "x=" {
		t.Errorf("Resolve = %q, want empty substitution for missing name with no default", got)
	}
}

func TestResolveMultiplePlaceholders(t *testing.T) {
	vars := map[string]string{"USER": "alice", "HOST": "db"}
	got := Resolve("${USER}@${HOST}:${PORT:-5432}", vars)
	if got != "alice@db:5432" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	vars := map[string]string{"HOST": "db.internal"}
	once := Resolve("host=${HOST}", vars)
	twice := Resolve(once, vars)
	if once != twice {
		t.Errorf("Resolve not idempotent: %q vs %q", once, twice)
	}
}

func TestUnresolvedDetectsLeftoverPlaceholder(t *testing.T) {
	if !Unresolved("conn=${DSN}") {
		t.Error("expected Unresolved=true")
	}
	if Unresolved("conn=postgres://db") {
		t.Error("expected Unresolved=false for fully resolved string")
	}
}

func TestResolveOrNilReturnsNilWhenUnresolved(t *testing.T) {
	// An unclosed placeholder never matches the substitution regex, so it
	// survives the pass and must be reported as unresolved.
	if got := ResolveOrNil("host=${HOST", map[string]string{}); got != nil {
		t.Errorf("ResolveOrNil = %v, want nil", got)
	}
}

func TestResolveOrNilReturnsValueWhenFullyResolved(t *testing.T) {
	got := ResolveOrNil("${HOST}:${PORT:-5432}", map[string]string{"HOST": "db"})
	if got == nil || *got != "db:5432" {
		t.Errorf("ResolveOrNil = %v, want \"db:5432\"", got)
	}
}
