package catalog

import (
	"errors"
	"sync"
	"testing"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

func cc(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Hero Hunk 160R 4V":   "herohunk160r4v",
		"Hero_Hunk_160R_4V":   "herohunk160r4v",
		"genesis-ka.150":      "genesiska150",
		" Bajaj / Pulsar\tNS": "bajajpulsarns",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	c, err := Default(quiet)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver()

	cases := []struct {
		name  string
		id    string
		cc    *float64
		want  string
		match MatchKind
	}{
		{"exact", "Genesis_KA_150", nil, "Genesis_KA_150", MatchExact},
		{"dirty name", "Hero Hunk 160R 4V", nil, "Hero_Hunk_160R_4V", MatchNormalized},
		{"case", "hero_hunk_160r", nil, "Hero_Hunk_160R", MatchNormalized},
		{"fallback small", "Unknown_Bike", cc(125), DefaultSmallGeneric, MatchFallback},
		{"fallback boundary", "Unknown_Bike", cc(150), DefaultSmallGeneric, MatchFallback},
		{"fallback large", "Unknown_Bike", cc(150.5), DefaultLargeGeneric, MatchFallback},
		{"known ignores displacement", "Genesis_KA_150", cc(600), "Genesis_KA_150", MatchExact},
	}
	for _, tc := range cases {
		id, how, err := r.Resolve(c, tc.id, tc.cc)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if id != tc.want || how != tc.match {
			t.Errorf("%s: got (%q, %s), want (%q, %s)", tc.name, id, how, tc.want, tc.match)
		}
	}
}

func TestResolveNeedsDisplacement(t *testing.T) {
	c, _ := Default(quiet)
	_, _, err := NewResolver().Resolve(c, "Unknown_Bike", nil)
	if !errors.Is(err, domain.ErrDisplacementRequired) {
		t.Fatalf("expected ErrDisplacementRequired, got %v", err)
	}
	if !domain.IsClientError(err) {
		t.Fatal("missing displacement should be a client error")
	}
}

func TestResolveMissingGeneric(t *testing.T) {
	c := mustParse(t, fixture)
	_, _, err := NewResolver().Resolve(c, "nope", cc(100))
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestNormalizedCollisionFirstWins(t *testing.T) {
	src := `
profiles:
  Moto_X:
    brand: a
    model: first
    tasks: [{component_id: oil, name: Oil, action: REPLACE, interval: {km: 1000}}]
  moto-x:
    brand: b
    model: second
    tasks: [{component_id: oil, name: Oil, action: REPLACE, interval: {km: 2000}}]
`
	c := mustParse(t, src)
	id, how, err := NewResolver().Resolve(c, "MOTO X", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != "Moto_X" || how != MatchNormalized {
		t.Fatalf("got (%q, %s)", id, how)
	}
	if _, how, _ := NewResolver().Resolve(c, "moto-x", nil); how != MatchExact {
		t.Fatal("shadowed key must still match exactly")
	}
}

func TestStoreReload(t *testing.T) {
	calls := 0
	srcs := []string{fixture, `profiles: {Only: {brand: o, model: o, tasks: []}}`, "not: [valid"}
	s, err := NewStore(func() (*Catalog, error) {
		src := srcs[calls]
		calls++
		return Parse([]byte(src), quiet)
	}, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if s.Current().Len() != 2 {
		t.Fatalf("initial len %d", s.Current().Len())
	}
	if _, err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.Current().Len() != 1 {
		t.Fatalf("reloaded len %d", s.Current().Len())
	}
	if _, err := s.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if s.Current().Len() != 1 {
		t.Fatal("failed reload must keep the current catalog")
	}
}

func TestStoreConcurrentReads(t *testing.T) {
	s, err := NewStore(SourceLoader("", quiet), quiet)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if s.Current().Len() == 0 {
					t.Error("observed empty catalog")
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		if _, err := s.Reload(); err != nil {
			t.Error(err)
		}
	}
	wg.Wait()
}
