package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedom_case_2/crcollector/internal/classify"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
)

func testRules() *classify.Rules {
	return classify.NewRules(classify.Keywords{
		Request:       []string{"요청", "문의", "수정", "버그", "request", "please"},
		Urgent:        []string{"긴급", "asap"},
		High:          []string{"중요"},
		Low:           []string{"아이디어"},
		Bug:           []string{"버그", "오류", "bug", "error"},
		Improvement:   []string{"개선", "수정"},
		Feature:       []string{"추가", "신규"},
		Inquiry:       []string{"문의", "질문"},
		ClientAuthors: []string{"heather"},
	})
}

func testSink() (*Sink, *db.MemoryStore) {
	store := db.NewMemoryStore(time.UTC)
	rules := testRules()
	return &Sink{Store: store, Classifier: rules, Rules: rules}, store
}

func testRun(w Window) Run {
	return Run{Window: w, Budget: NewBudget(time.Now(), time.Minute, 50), Logger: zerolog.Nop()}
}

func TestDailyWindow(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	after := time.Date(2026, 10, 15, 10, 30, 0, 0, loc)
	w := DailyWindow(after, loc, 9)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, loc), w.End)

	before := time.Date(2026, 10, 15, 8, 59, 0, 0, loc)
	w = DailyWindow(before, loc, 9)
	assert.Equal(t, time.Date(2026, 10, 13, 9, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, loc), w.End)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.False(t, w.Contains(w.End.Add(time.Nanosecond)))
}

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	w := LookbackWindow(now, 7)
	assert.Equal(t, now.AddDate(0, 0, -7), w.Start)
	assert.Equal(t, now, w.End)
}

func TestBudgetExhausted(t *testing.T) {
	b := NewBudget(time.Now(), time.Minute, 3)
	assert.False(t, b.Exhausted(2))
	assert.True(t, b.Exhausted(3))

	expired := NewBudget(time.Now().Add(-time.Hour), time.Second, 0)
	assert.True(t, expired.Exhausted(0))

	unlimited := NewBudget(time.Now(), 0, 0)
	assert.False(t, unlimited.Exhausted(1000))
}

func TestParseSlackTS(t *testing.T) {
	got := parseSlackTS(zerolog.Nop(), "1700000001.000200")
	assert.Equal(t, int64(1700000001), got.Unix())
	assert.Equal(t, 200*int(time.Microsecond), got.Nanosecond())

	before := time.Now()
	fallback := parseSlackTS(zerolog.Nop(), "garbage")
	assert.False(t, fallback.Before(before))
}

func TestParseTimestampFallsBackToNow(t *testing.T) {
	before := time.Now()
	got := parseTimestamp(zerolog.Nop(), "yesterday-ish")
	assert.False(t, got.Before(before))

	got = parseTimestamp(zerolog.Nop(), "2026-10-14T01:00:00.000Z")
	assert.Equal(t, time.Date(2026, 10, 14, 1, 0, 0, 0, time.UTC), got.UTC())
}

func TestSinkFiltersDedupesAndSubstitutesContentCategory(t *testing.T) {
	sink, store := testSink()
	ctx := context.Background()
	run := testRun(LookbackWindow(time.Now(), 1))

	existing := models.Request{Source: models.SourceConfluence, SourceID: "c-existing", Title: "old"}
	_, err := store.SaveRequest(ctx, existing)
	require.NoError(t, err)

	cands := []Candidate{
		{Request: models.Request{Source: models.SourceConfluence, SourceID: "c-1"}, Text: "회의록 공유드립니다", Author: "Kim"},
		{Request: models.Request{Source: models.SourceConfluence, SourceID: "c-2"}, Text: "확인 부탁", Author: "Heather (Client)", ContentCategory: models.CategoryComment},
		{Request: models.Request{Source: models.SourceConfluence, SourceID: "c-3"}, Text: "로그인 오류 수정 요청", Author: "Kim", ContentCategory: models.CategoryComment},
		{Request: models.Request{Source: models.SourceConfluence, SourceID: "c-existing"}, Text: "수정 요청", Author: "Kim"},
	}
	var res Result
	sink.Submit(ctx, run, cands, &res)

	assert.Equal(t, 4, res.Seen)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Count)
	assert.Empty(t, res.Errors)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	byID := map[string]models.Request{}
	for _, r := range all {
		byID[r.SourceID] = r
	}
	assert.Equal(t, models.CategoryComment, byID["c-2"].Category)
	assert.Equal(t, models.CategoryBug, byID["c-3"].Category)
	assert.Equal(t, models.PriorityHigh, byID["c-3"].Priority)
	assert.Equal(t, "로그인 오류 수정 요청", byID["c-3"].Title)
	assert.Equal(t, "Unknown", byID["c-2"].RequesterName)
}

// failingStore rejects the duplicate check or the insert for chosen source IDs.
type failingStore struct {
	*db.MemoryStore
	dupFails  map[string]bool
	saveFails map[string]bool
}

func (s *failingStore) IsDuplicate(ctx context.Context, sourceID string, source models.Source) (bool, error) {
	if s.dupFails[sourceID] {
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.IsDuplicate(ctx, sourceID, source)
}

func (s *failingStore) InsertIfAbsent(ctx context.Context, r models.Request) (models.Request, bool, error) {
	if s.saveFails[r.SourceID] {
		return models.Request{}, false, errors.New("disk full")
	}
	return s.MemoryStore.InsertIfAbsent(ctx, r)
}

func TestSinkReportsStoreErrorsAndKeepsGoing(t *testing.T) {
	mem := db.NewMemoryStore(time.UTC)
	store := &failingStore{
		MemoryStore: mem,
		dupFails:    map[string]bool{"s-2": true},
		saveFails:   map[string]bool{"s-3": true},
	}
	rules := testRules()
	sink := &Sink{Store: store, Classifier: rules, Rules: rules}
	ctx := context.Background()

	cands := []Candidate{
		{Request: models.Request{Source: models.SourceSlack, SourceID: "s-1"}, Text: "버그 수정 요청", Author: "Kim"},
		{Request: models.Request{Source: models.SourceSlack, SourceID: "s-2"}, Text: "문의 드립니다", Author: "Kim"},
		{Request: models.Request{Source: models.SourceSlack, SourceID: "s-3"}, Text: "기능 추가 요청", Author: "Kim"},
		{Request: models.Request{Source: models.SourceSlack, SourceID: "s-4"}, Text: "please check the error", Author: "Lee"},
	}
	var res Result
	sink.Submit(ctx, testRun(LookbackWindow(time.Now(), 1)), cands, &res)

	assert.Equal(t, 4, res.Seen)
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "duplicate check s-2: connection reset", res.Errors[0])
	assert.Equal(t, "save slack/s-3: disk full", res.Errors[1])

	all, err := mem.GetAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.SourceID)
	}
	assert.ElementsMatch(t, []string{"s-1", "s-4"}, ids)
}
