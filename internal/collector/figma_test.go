package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/figma"
)

const figmaComments = `{"comments":[
	{"id":"1","message":"버튼 색상 수정 요청","created_at":"2026-10-14T01:00:00Z","user":{"id":"u1","handle":"Lucy"},"client_meta":{"node_id":"4:2"}},
	{"id":"2","parent_id":"1","message":"폰트도 수정 부탁해요 please","created_at":"2026-10-14T02:00:00Z","user":{"id":"u2","handle":"Heather"}},
	{"id":"3","message":"오래된 수정 요청","created_at":"2026-09-01T02:00:00Z","user":{"id":"u1","handle":"Lucy"}},
	{"id":"4","message":"해결된 버그 요청","created_at":"2026-10-14T03:00:00Z","resolved_at":"2026-10-14T04:00:00Z","user":{"id":"u1","handle":"Lucy"}},
	{"id":"5","parent_id":"4","message":"확인 요청","created_at":"2026-10-14T05:00:00Z","user":{"id":"u2","handle":"Heather"}}
]}`

func figmaClient(t *testing.T) *figma.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/files/abc/comments":
			_, _ = w.Write([]byte(figmaComments))
		case "/v1/files/abc":
			_, _ = w.Write([]byte(`{"name":"Mobile App"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	c := figma.New("figtoken", srv.Client())
	c.BaseURL = srv.URL
	return c
}

func figmaWindow() Window {
	return Window{
		Start: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestFigmaCollectorRepliesAndResolvedThreads(t *testing.T) {
	sink, store := testSink()
	c := &FigmaCollector{Client: figmaClient(t), FileKeys: []string{"abc", "missing"}, Project: "fanlight", Sink: sink}
	require.True(t, c.Configured())

	res := c.Collect(context.Background(), testRun(figmaWindow()))
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "missing")

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := map[string]models.Request{}
	for _, r := range all {
		ids[r.SourceID] = r
	}
	reply := ids["2"]
	assert.Equal(t, "1", reply.ThreadTS)
	assert.Equal(t, "Figma: Mobile App", reply.ChannelName)
	assert.Equal(t, "https://www.figma.com/file/abc/Mobile%20App?node-id=4%3A2#1", ids["1"].OriginalURL)
}

func TestFigmaCollectorIncludeResolvedAndCap(t *testing.T) {
	sink, _ := testSink()
	c := &FigmaCollector{Client: figmaClient(t), FileKeys: []string{"abc"}, IncludeResolved: true, MaxComments: 4, Sink: sink}

	res := c.Collect(context.Background(), testRun(figmaWindow()))
	// comment 5 is past the cap, comment 3 is outside the window
	assert.Equal(t, 3, res.Count)
	assert.Empty(t, res.Errors)
}

func TestFigmaCollectorUnconfigured(t *testing.T) {
	c := &FigmaCollector{Client: figma.New("", nil), FileKeys: []string{"abc"}}
	assert.False(t, c.Configured())
}
