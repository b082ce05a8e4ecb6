package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/slack"
)

type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) hit(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[path]++
}

func (c *callCounter) get(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

func slackClient(t *testing.T, calls *callCounter) *slack.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.hit(r.URL.Path)
		q := r.URL.Query()
		switch r.URL.Path {
		case "/conversations.info":
			_, _ = w.Write([]byte(`{"ok":true,"channel":{"id":"C1","name":"client-requests"}}`))
		case "/conversations.history":
			if q.Get("cursor") == "" {
				_, _ = w.Write([]byte(`{"ok":true,"has_more":true,"response_metadata":{"next_cursor":"p2"},"messages":[
					{"type":"message","user":"U1","text":"로그인 오류 수정 요청","ts":"1760400000.000100","reply_count":2},
					{"type":"message","subtype":"channel_join","user":"U2","text":"joined","ts":"1760400001.000100"},
					{"type":"message","user":"U2","text":"","ts":"1760400002.000100"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"has_more":false,"messages":[
				{"type":"message","user":"U9","text":"신규 메뉴 추가 요청","ts":"1760400003.000100"},
				{"type":"message","user":"U1","text":"점심 뭐 먹지","ts":"1760400004.000100"}]}`))
		case "/conversations.replies":
			assert.Equal(t, "1760400000.000100", q.Get("ts"))
			_, _ = w.Write([]byte(`{"ok":true,"has_more":false,"messages":[
				{"type":"message","user":"U1","text":"로그인 오류 수정 요청","ts":"1760400000.000100","thread_ts":"1760400000.000100","reply_count":2},
				{"type":"message","user":"U2","text":"확인했습니다, 수정 요청 접수","ts":"1760400010.000100","thread_ts":"1760400000.000100"}]}`))
		case "/users.info":
			switch q.Get("user") {
			case "U1":
				_, _ = w.Write([]byte(`{"ok":true,"user":{"id":"U1","name":"heather","real_name":"Heather Park"}}`))
			case "U2":
				_, _ = w.Write([]byte(`{"ok":true,"user":{"id":"U2","name":"minsu"}}`))
			default:
				_, _ = w.Write([]byte(`{"ok":false,"error":"user_not_found"}`))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	c := slack.New("xoxb-test", srv.Client())
	c.BaseURL = srv.URL
	return c
}

func TestSlackCollector(t *testing.T) {
	calls := &callCounter{}
	sink, store := testSink()
	c := &SlackCollector{Client: slackClient(t, calls), Channels: []string{"C1"}, Project: "fanlight", Sink: sink}
	require.True(t, c.Configured())

	res := c.Collect(context.Background(), testRun(LookbackWindow(time.Now(), 1)))
	require.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 2, calls.get("/conversations.history"))
	assert.Equal(t, 1, calls.get("/conversations.replies"))
	// U1, U2 and U9 are looked up once each
	assert.Equal(t, 3, calls.get("/users.info"))

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	byID := map[string]models.Request{}
	for _, r := range all {
		byID[r.SourceID] = r
	}
	require.Len(t, byID, 3)
	assert.Equal(t, "Heather Park", byID["1760400000.000100"].RequesterName)
	assert.Equal(t, "https://slack.com/archives/C1/p1760400000000100", byID["1760400000.000100"].OriginalURL)
	assert.Equal(t, "client-requests", byID["1760400000.000100"].ChannelName)
	assert.Equal(t, "1760400000.000100", byID["1760400010.000100"].ThreadTS)
	assert.Equal(t, "minsu", byID["1760400010.000100"].RequesterName)
	assert.Equal(t, "Unknown", byID["1760400003.000100"].RequesterName)
	assert.Equal(t, models.CategoryNewFeature, byID["1760400003.000100"].Category)
}

func TestSlackCollectorStopsOnPageCeiling(t *testing.T) {
	calls := &callCounter{}
	sink, _ := testSink()
	c := &SlackCollector{Client: slackClient(t, calls), Channels: []string{"C1"}, Sink: sink}
	run := testRun(LookbackWindow(time.Now(), 1))
	run.Budget = Budget{MaxPages: 1}

	res := c.Collect(context.Background(), run)
	assert.True(t, res.Truncated)
	assert.Equal(t, 1, calls.get("/conversations.history"))
	assert.Equal(t, 0, calls.get("/conversations.replies"))
	// the first page is still persisted; its thread was cut off by the ceiling
	assert.Equal(t, 1, res.Count)
}
