package normalize_test

import (
	"testing"

	"github.com/rohmanhakim/linkharvest/internal/normalize"
)

func TestURL_StripsTrackingParamsAndSortsRemainder(t *testing.T) {
	got, err := normalize.URL("https://Example.com/Path/?b=2&utm_source=x&a=1&gclid=zzz")
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	want := "https://example.com/Path/?a=1&b=2"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}

func TestURL_CollapsesIndexHTMLAndDropsFragment(t *testing.T) {
	got, err := normalize.URL("https://example.com/a/index.html#frag")
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	want := "https://example.com/a/"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}

func TestURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://Example.com/Path/?b=2&utm_source=x&a=1&gclid=zzz",
		"https://example.com/a/index.html#frag",
		"http://HOST.example/x/y?z=1&z=2",
		"https://example.com",
	}
	for _, in := range inputs {
		once, err := normalize.URL(in)
		if err != nil {
			t.Fatalf("URL(%q) returned error: %v", in, err)
		}
		twice, err := normalize.URL(once)
		if err != nil {
			t.Fatalf("URL(%q) returned error: %v", once, err)
		}
		if once != twice {
			t.Fatalf("URL not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestURL_PreservesPathCase(t *testing.T) {
	got, err := normalize.URL("https://example.com/CaseSensitive/Path")
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	want := "https://example.com/CaseSensitive/Path"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}

func TestURL_NoTrackingParamsLeftInQuery(t *testing.T) {
	got, err := normalize.URL("https://example.com/?utm_campaign=x&utm_medium=y&mc_cid=1&mc_eid=2&fbclid=3&real=keep")
	if err != nil {
		t.Fatalf("URL returned error: %v", err)
	}
	want := "https://example.com/?real=keep"
	if got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}
