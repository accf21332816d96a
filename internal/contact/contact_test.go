package contact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"mailto:Contact@LeBistrot.fr?subject=Hi", "contact@lebistrot.fr"},
		{"MAILTO:info%40cafe.fr", "info@cafe.fr"},
		{"<hello@shop.com>.", "hello@shop.com"},
		{"not an email", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), tt.in)
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	assert.True(t, Allowed("contact@lebistrot.fr"))
	for _, e := range []string{"you@example.com", "a@test.com", "noreply@shop.fr", "no-reply@shop.fr", "placeholder@x.fr", "logo@2x.png"} {
		assert.False(t, Allowed(e), e)
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<p>Write to contact@lebistrot.fr or you@example.com</p>
<img src="/img/logo@2x.png">
<a href="mailto:reservations%40lebistrot.fr">Book</a>
<a href="mailto:contact@lebistrot.fr">Mail</a>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, []string{"contact@lebistrot.fr", "reservations@lebistrot.fr"}, Candidates(html, doc))
}

func TestNormalizeWebsite(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://lebistrot.fr/", NormalizeWebsite("https://www.google.com/url?q=https://lebistrot.fr/&opi=1"))
	assert.Equal(t, "https://lebistrot.fr", NormalizeWebsite("lebistrot.fr"))
	assert.Equal(t, "http://x.fr", NormalizeWebsite(" http://x.fr "))
}

type stubMX map[string]bool

func (m stubMX) HasMX(_ context.Context, domain string) bool { return m[domain] }

type stubSource struct {
	html  string
	calls int
}

func (s *stubSource) FetchHTML(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.html == "" {
		return "", errors.New("browser unavailable")
	}
	return s.html, nil
}

func TestHunter_FollowsContactLink(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a href="/menu">Menu</a><a href="/nous-contacter">Contact</a><a href="https://other.fr/contact">x</a>`))
	})
	mux.HandleFunc("/nous-contacter", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>Email: hello@bistrot.fr</p>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := NewHunter(Options{}, nil, nil)
	email, err := h.Find(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "hello@bistrot.fr", email)
}

func TestHunter_MXFiltersCandidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>old@dead-domain.fr new@live.fr</p>`))
	}))
	defer srv.Close()

	h := NewHunter(Options{}, stubMX{"live.fr": true}, nil)
	email, err := h.Find(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "new@live.fr", email)
}

func TestHunter_BrowserFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := &stubSource{html: `<a href="mailto:owner@cafe.fr">Mail</a>`}
	h := NewHunter(Options{}, nil, src)
	email, err := h.Find(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "owner@cafe.fr", email)
	assert.Equal(t, 1, src.calls)
}

func TestHunter_NothingFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>Call us</p>`))
	}))
	defer srv.Close()

	h := NewHunter(Options{MaxPages: 1}, nil, &stubSource{})
	email, err := h.Find(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestHunter_InvalidWebsite(t *testing.T) {
	t.Parallel()

	h := NewHunter(Options{}, nil, nil)
	_, err := h.Find(context.Background(), "")
	assert.Error(t, err)
}

func TestDNSVerifier_EmptyDomain(t *testing.T) {
	t.Parallel()

	v := NewDNSVerifier(nil, 0)
	assert.Len(t, v.servers, 2)
	assert.False(t, v.HasMX(context.Background(), " "))
}
