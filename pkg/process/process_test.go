package process

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsInScope(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://site.example/", true},
		{"http://site.example/a?b=c", true},
		{"https://other.example/page", false},
		{"https://www.site.example/", false},
		{"https://site.example:8443/", false},
		{"ftp://site.example/file", false},
		{"mailto:someone@site.example", false},
		{"/relative/path", false},
		{"", false},
		{"https://site.example/%zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInScope(tt.url, "site.example"))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://site.example/", "https://site.example/"},
		{"HTTPS://Site.Example:443/a#section", "https://site.example/a"},
		{"https://site.example//a/./b/../c", "https://site.example/a/c"},
		{"https://site.example/p?b=2&a=1", "https://site.example/p?a=1&b=2"},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestExtractLinksKeepsDocumentOrder(t *testing.T) {
	doc := `<html><body>
		<a href="/b">b</a>
		<div><a href="a">a</a><a href="">empty</a></div>
		<a href="https://external.example/x">x</a>
		<a href="javascript:void(0)">js</a>
		<a href="mailto:me@site.example">mail</a>
		<a href="#top">top</a>
	</body></html>`

	links, err := ExtractLinks(strings.NewReader(doc), "https://site.example/dir/page")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://site.example/b",
		"https://site.example/dir/a",
		"https://external.example/x",
		"https://site.example/dir/page#top",
	}, links)
}

func TestExtractLinksHonoursBase(t *testing.T) {
	doc := `<html><head><base href="https://site.example/root/"></head>
		<body><a href="child">c</a></body></html>`

	links, err := ExtractLinks(strings.NewReader(doc), "https://site.example/elsewhere/page")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site.example/root/child"}, links)
}

func TestExtractLinksFirstBaseWinsAndDuplicatesStay(t *testing.T) {
	doc := `<html><head>
		<base href="/one/">
		<base href="https://other.example/two/">
		</head><body><a href="x">x</a><a href="x">again</a><a href="/y">y</a></body></html>`

	links, err := ExtractLinks(strings.NewReader(doc), "https://site.example/page")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://site.example/one/x",
		"https://site.example/one/x",
		"https://site.example/y",
	}, links)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "https://site.example/a/b", Resolve("https://site.example/a/", "b"))
	assert.Equal(t, "https://site.example/c", Resolve("https://site.example/a/", "/c"))
	assert.Equal(t, "", Resolve("https://site.example/", "ftp://site.example/f"))
}

func TestScopeAdmit(t *testing.T) {
	s := &Scope{BaseDomain: "site.example"}

	got, ok := s.Admit("https://site.example/", "/a#frag")
	require.True(t, ok)
	assert.Equal(t, "https://site.example/a", got)

	_, ok = s.Admit("https://site.example/", "https://external.example/b")
	assert.False(t, ok)

	_, ok = s.Admit("https://site.example/", "tel:+100")
	assert.False(t, ok)
}

func TestScopeAdmitRespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	domain, err := BaseDomain(srv.URL)
	require.NoError(t, err)

	s := &Scope{BaseDomain: domain, Robots: NewRobotsChecker(srv.Client(), "sitecrawl")}

	_, ok := s.Admit(srv.URL+"/", "/private/page")
	assert.False(t, ok)

	got, ok := s.Admit(srv.URL+"/", "/public")
	assert.True(t, ok)
	assert.Equal(t, srv.URL+"/public", got)
}

func TestRobotsUnreachableAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/page"
	srv.Close()

	c := NewRobotsChecker(nil, "sitecrawl")
	assert.True(t, c.Allowed(url))
}

func TestDomainSlug(t *testing.T) {
	assert.Equal(t, "www_eldiario_es", DomainSlug("www.eldiario.es"))
	assert.Equal(t, "127_0_0_1_8080", DomainSlug("127.0.0.1:8080"))
}
