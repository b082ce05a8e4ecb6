package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/confluence"
)

const threeComments = `{"results":[
	{"id":"c1","type":"comment","body":{"storage":{"value":"<p>버튼 위치 수정 요청드립니다</p>"}},
	 "history":{"createdDate":"2026-10-14T01:00:00.000Z","createdBy":{"accountId":"a1","displayName":"Kim"}}},
	{"id":"c2","type":"comment","body":{"storage":{"value":"<p>결제 오류 <b>긴급</b> 확인 요청</p>"}},
	 "history":{"createdDate":"2026-10-14T02:00:00.000Z","createdBy":{"accountId":"a2","displayName":"Lee"}}},
	{"id":"c3","type":"comment","body":{"storage":{"value":"<p>좋아 보여요</p>"}},
	 "history":{"createdDate":"2026-10-14T03:00:00.000Z","createdBy":{"accountId":"a3","displayName":"Heather"}}}
	],"start":0,"limit":25,"size":3}`

func confluenceServer(t *testing.T, handler http.HandlerFunc) *confluence.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return confluence.New(srv.URL, "bot@example.com", "token", srv.Client())
}

func TestConfluenceCommentCollectorStoresPageComments(t *testing.T) {
	client := confluenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wiki/rest/api/content/search":
			assert.Contains(t, r.URL.Query().Get("cql"), "type=page")
			_, _ = w.Write([]byte(`{"results":[{"id":"123","type":"page","title":"Release notes","space":{"key":"DEV","name":"Dev"}}],"start":0,"limit":25,"size":1}`))
		case "/wiki/rest/api/content/123/child/comment":
			_, _ = w.Write([]byte(threeComments))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sink, store := testSink()
	c := &ConfluenceCommentCollector{
		Site:     config.ConfluenceSite{Project: "fanlight", Domain: "fanlight.atlassian.net"},
		Client:   client,
		Sink:     sink,
		MaxPages: 20,
	}
	require.True(t, c.Configured())

	run := testRun(LookbackWindow(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), 1))
	res := c.Collect(context.Background(), run)
	assert.Equal(t, 3, res.Count)
	assert.Empty(t, res.Errors)

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, r := range all {
		assert.Equal(t, models.SourceConfluence, r.Source)
		assert.Equal(t, "fanlight", r.Project)
		assert.Equal(t, "Confluence Comment on: Release notes", r.ChannelName)
	}

	// a second pass over the same window stores nothing new
	again := c.Collect(context.Background(), run)
	assert.Equal(t, 0, again.Count)
	all, err = store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestConfluenceCommentCollectorCapsPagesAndSkipsFailures(t *testing.T) {
	var commentCalls int32
	client := confluenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/wiki/rest/api/content/search":
			_, _ = w.Write([]byte(`{"results":[{"id":"1","title":"A"},{"id":"2","title":"B"},{"id":"3","title":"C"}],"start":0,"limit":25,"size":3}`))
		case strings.HasSuffix(r.URL.Path, "/child/comment"):
			atomic.AddInt32(&commentCalls, 1)
			if strings.Contains(r.URL.Path, "/1/") {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(`{"results":[],"start":0,"limit":25,"size":0}`))
		}
	})
	sink, _ := testSink()
	c := &ConfluenceCommentCollector{
		Site:     config.ConfluenceSite{Project: "fanlight", Domain: "x"},
		Client:   client,
		Sink:     sink,
		MaxPages: 2,
	}

	res := c.Collect(context.Background(), testRun(LookbackWindow(time.Now(), 1)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&commentCalls))
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Errors)
}

func TestConfluencePageCollector(t *testing.T) {
	long := strings.Repeat("가", 1200)
	client := confluenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		cql := r.URL.Query().Get("cql")
		assert.Contains(t, cql, `lastmodified >= "2026-10-14 09:00"`)
		assert.Contains(t, cql, `(space="DEV" OR space="QA")`)
		fmt.Fprintf(w, `{"results":[
			{"id":"123","title":"Login flow","body":{"storage":{"value":"<p>신규 화면 요청 &amp; 검토</p>"}},
			 "version":{"when":"2026-10-14T05:00:00.000Z","by":{"accountId":"a1","displayName":"Kim"}},
			 "space":{"key":"DEV","name":"Dev"},"_links":{"webui":"/spaces/DEV/pages/123"}},
			{"id":"124","title":"Notes","body":{"storage":{"value":"<p>요청 %s</p>"}},
			 "history":{"createdDate":"2026-10-14T05:00:00.000Z","createdBy":{"displayName":"Lee"}}}
			],"start":0,"limit":25,"size":2}`, long)
	})
	sink, store := testSink()
	c := &ConfluencePageCollector{
		Site:   config.ConfluenceSite{Project: "fanlight", Domain: "x", Spaces: []string{"DEV", "QA"}},
		Client: client,
		Sink:   sink,
	}
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	run := testRun(DailyWindow(time.Date(2026, 10, 15, 10, 0, 0, 0, loc), loc, 9))

	res := c.Collect(context.Background(), run)
	require.Equal(t, 2, res.Count, "errors: %v", res.Errors)

	first, err := store.GetByCRNumber(context.Background(), mustCR(t, store, "page-123"))
	require.NoError(t, err)
	assert.Equal(t, "신규 화면 요청 & 검토", first.Description)
	assert.Equal(t, models.CategoryNewFeature, first.Category)
	assert.Equal(t, "Kim", first.RequesterName)
	assert.True(t, strings.HasSuffix(first.OriginalURL, "/wiki/spaces/DEV/pages/123"))

	second, err := store.GetByCRNumber(context.Background(), mustCR(t, store, "page-124"))
	require.NoError(t, err)
	assert.Equal(t, 1000, len([]rune(second.Description)))
	assert.Equal(t, models.CategoryDocumentation, second.Category)
}

func TestConfluenceCollectorTruncatesOnBudget(t *testing.T) {
	client := confluenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no fetch expected once the budget is spent")
	})
	sink, _ := testSink()
	c := &ConfluencePageCollector{Site: config.ConfluenceSite{Project: "p", Domain: "x"}, Client: client, Sink: sink}
	run := testRun(LookbackWindow(time.Now(), 1))
	run.Budget = Budget{Deadline: time.Now().Add(-time.Second)}

	res := c.Collect(context.Background(), run)
	assert.True(t, res.Truncated)
	assert.Equal(t, 0, res.Count)
}

func TestConfluenceCollectorUnconfigured(t *testing.T) {
	c := &ConfluencePageCollector{Site: config.ConfluenceSite{Project: "p"}}
	assert.False(t, c.Configured())
}

func mustCR(t *testing.T, store interface {
	GetAll(ctx context.Context) ([]models.Request, error)
}, sourceID string) string {
	t.Helper()
	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	for _, r := range all {
		if r.SourceID == sourceID {
			return r.CRNumber
		}
	}
	t.Fatalf("request %s not stored", sourceID)
	return ""
}
