package keyword

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// testResolver points the resolver at an httptest server by making its
// host the accepted share host.
func testResolver(srv *httptest.Server) *Resolver {
	r := NewResolver()
	u, _ := url.Parse(srv.URL)
	r.Host = u.Host
	return r
}

func TestResolveFromRedirectLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://www.temu.com/product.html?share_title=Crystal%20Shop%20Official&goods_id=1")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	got, err := testResolver(srv).Resolve(context.Background(), srv.URL+"/u/abcdef")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "Crystal" {
		t.Errorf("keyword = %q, want %q", got, "Crystal")
	}
}

func TestResolveRedirectStatuses(t *testing.T) {
	for _, code := range []int{http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "https://www.temu.com/p?share_title=Gadget%20World")
			w.WriteHeader(code)
		}))
		got, err := testResolver(srv).Resolve(context.Background(), srv.URL+"/u/x")
		srv.Close()
		if err != nil {
			t.Fatalf("status %d: %v", code, err)
		}
		if got != "Gadget" {
			t.Errorf("status %d: keyword = %q, want %q", code, got, "Gadget")
		}
	}
}

func TestResolveRedirectWithoutShareTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://www.temu.com/p?goods_id=1")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	got, err := testResolver(srv).Resolve(context.Background(), srv.URL+"/u/x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "" {
		t.Errorf("keyword = %q, want empty", got)
	}
}

func TestResolveFromLandingPageAnchor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
			<a href="/p.html?share_title=Crystal%20Boutique&amp;goods_id=2">open</a>
			<a href="/other?share_title=Wrong">other</a>
		</body></html>`))
	}))
	defer srv.Close()

	got, err := testResolver(srv).Resolve(context.Background(), srv.URL+"/u/x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "Crystal" {
		t.Errorf("keyword = %q, want %q (first anchor wins)", got, "Crystal")
	}
}

func TestResolveRejectsForeignHostBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	r := NewResolver() // accepts share.temu.com only
	_, err := r.Resolve(context.Background(), srv.URL+"/u/x")
	if !IsInvalidLink(err) {
		t.Fatalf("expected InvalidLinkError, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server was contacted %d times, want 0", hits.Load())
	}

	if _, err := r.Resolve(context.Background(), "not a url"); !IsInvalidLink(err) {
		t.Errorf("expected InvalidLinkError for garbage input, got %v", err)
	}
}

func TestResolveErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := testResolver(srv).Resolve(context.Background(), srv.URL+"/u/x"); err == nil {
		t.Fatal("expected error for 404 landing page")
	}
}

func TestResolveTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	r := testResolver(srv)
	r.Timeout = 20 * time.Millisecond
	if _, err := r.Resolve(context.Background(), srv.URL+"/u/x"); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestResolveSendsBrowserUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Location", "https://www.temu.com/p?share_title=X")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	if _, err := testResolver(srv).Resolve(context.Background(), srv.URL+"/u/x"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if gotUA != userAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFirstTitleWord(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"percent-encoded spaces", "https://x.com/p?share_title=Crystal%20Shop%20Official", "Crystal"},
		{"plus stays literal", "/p?share_title=Gadget+World", "Gadget+World"},
		{"single word", "share_title=Acme&x=1", "Acme"},
		{"stops at ampersand", "share_title=Foo&share_title=Bar", "Foo"},
		{"missing parameter", "https://x.com/p?title=Crystal", ""},
		{"blank value", "share_title=%20%20", ""},
		{"leading whitespace trimmed", "share_title=%20%09Crystal%20Shop", "Crystal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstTitleWord(tt.in); got != tt.want {
				t.Errorf("FirstTitleWord(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
