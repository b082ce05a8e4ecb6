package confluence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedom_case_2/crcollector/internal/providers"
)

func TestSearchSendsCQLAndBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot@example.com", user)
		assert.Equal(t, "token", pass)
		assert.Equal(t, "/wiki/rest/api/content/search", r.URL.Path)
		assert.Equal(t, `type=page and space = "DEV"`, r.URL.Query().Get("cql"))
		assert.Equal(t, "25", r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(`{"results":[{"id":"123","type":"page","title":"Login",
			"body":{"storage":{"value":"<p>Hi</p>"}},
			"history":{"createdDate":"2026-10-14T01:00:00.000Z","createdBy":{"accountId":"a1","displayName":"Heather"}},
			"version":{"when":"2026-10-14T02:00:00.000Z","by":{"displayName":"Kim"}}}],
			"start":25,"limit":25,"size":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "bot@example.com", "token", srv.Client())
	page, err := c.Search(context.Background(), `type=page and space = "DEV"`, "body.storage", 25, 25)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	got := page.Results[0]
	assert.Equal(t, "123", got.ID)
	assert.Equal(t, "<p>Hi</p>", got.Body.Storage.Value)
	assert.Equal(t, "Heather", got.History.CreatedBy.DisplayName)
	assert.Equal(t, "Kim", got.Version.By.DisplayName)
	assert.False(t, page.HasMore())
}

func TestChildCommentsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wiki/rest/api/content/123/child/comment", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "e", "t", srv.Client())
	_, err := c.ChildComments(context.Background(), "123", 0, 50)
	var se *providers.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestNewAddsScheme(t *testing.T) {
	c := New("acme.atlassian.net/", "", "", nil)
	assert.Equal(t, "https://acme.atlassian.net", c.BaseURL)
	assert.Equal(t, "https://acme.atlassian.net/wiki/pages/viewpage.action?pageId=9", c.PageURL("9"))
}
