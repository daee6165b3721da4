package dispatch

import "testing"

func TestKeyDeterministic(t *testing.T) {
	a := Key("example.com", "/x", "q=1")
	b := Key("example.com", "/x", "q=1")
	if a != b {
		t.Errorf("Key is not deterministic: %q != %q", a, b)
	}
}

func TestKeyExcludesHost(t *testing.T) {
	// Two aliases of the same queue must collide on purpose: the digest
	// input is path+query only, never the host.
	r := NewRegistry(t.TempDir())
	r.Register("example.com", DefaultQueueDelay, []string{"www.example.com"})
	a := Key(r.Resolve("example.com").Name, "/x", "q=1")
	b := Key(r.Resolve("www.example.com").Name, "/x", "q=1")
	if a != b {
		t.Fatalf("expected identical keys for two aliases of one queue, got %q and %q", a, b)
	}
}

func TestKeyDiffersOnPathOrQuery(t *testing.T) {
	cases := []struct {
		path, query string
	}{
		{"/x", "q=1"},
		{"/x", "q=2"},
		{"/y", "q=1"},
		{"/x", ""},
	}
	seen := map[string]bool{}
	for _, c := range cases {
		k := Key("example.com", c.path, c.query)
		if seen[k] {
			t.Errorf("collision for path=%q query=%q: key %q already produced", c.path, c.query, k)
		}
		seen[k] = true
	}
}

func TestKeyHasQueuePrefix(t *testing.T) {
	k := Key("example.com", "/x", "q=1")
	want := "example.com/"
	if len(k) < len(want) || k[:len(want)] != want {
		t.Errorf("Key() = %q, want prefix %q", k, want)
	}
}
