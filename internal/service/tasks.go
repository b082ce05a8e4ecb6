package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/freedom_case_2/crcollector/internal/models"
)

// SimilarityThreshold is the score above which two requests join one task.
const SimilarityThreshold = 0.7

type TaskStatus string

const (
	TaskUnresolved TaskStatus = "unresolved"
	TaskInProgress TaskStatus = "in_progress"
	TaskResolved   TaskStatus = "resolved"
)

// Task is a unit of work built from one or more similar requests.
type Task struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Requester        string           `json:"requester"`
	RequestDate      time.Time        `json:"request_date"`
	Source           models.Source    `json:"source"`
	SourceLink       string           `json:"source_link,omitempty"`
	Priority         models.Priority  `json:"priority"`
	Category         models.Category  `json:"category"`
	Status           TaskStatus       `json:"status"`
	Tags             []string         `json:"tags"`
	RelatedRequests  []string         `json:"related_requests"`
	TechnicalDetails TechnicalDetails `json:"technical_details"`
}

type TechnicalDetails struct {
	AffectedComponents []string `json:"affected_components"`
	EstimatedEffort    int      `json:"estimated_effort"`
	Dependencies       []string `json:"dependencies"`
}

type TaskList struct {
	TotalRequests int    `json:"total_requests"`
	TotalTasks    int    `json:"total_tasks"`
	Tasks         []Task `json:"tasks"`
}

type keywordTag struct {
	tag   string
	terms []string
}

var (
	stopWords = map[string]bool{"의": true, "를": true, "을": true, "이": true, "가": true, "에": true, "에서": true, "으로": true, "와": true, "과": true}

	featureTags = []keywordTag{
		{"auth", []string{"로그인", "인증", "회원"}},
		{"payment", []string{"결제", "구매", "환불"}},
		{"search", []string{"검색", "필터", "정렬"}},
		{"notification", []string{"알림", "푸시", "노티"}},
		{"ui", []string{"ui", "ux", "디자인", "화면"}},
		{"backend", []string{"api", "서버", "백엔드"}},
		{"performance", []string{"성능", "속도", "최적화"}},
		{"bug", []string{"버그", "오류", "에러"}},
	}

	componentTags = []keywordTag{
		{"HomePage", []string{"홈화면", "홈 화면", "메인페이지", "메인 페이지"}},
		{"AuthPage", []string{"로그인화면", "로그인 화면", "회원가입"}},
		{"MyPage", []string{"마이페이지", "마이 페이지", "프로필"}},
		{"ProductDetail", []string{"상품상세", "상품 상세", "제품페이지", "제품 페이지"}},
		{"ShoppingCart", []string{"장바구니", "카트"}},
		{"Checkout", []string{"결제", "주문"}},
		{"Search", []string{"검색"}},
		{"Settings", []string{"설정", "세팅"}},
	}

	dependencyTags = []keywordTag{
		{"backend-api", []string{"api", "서버", "백엔드"}},
		{"database", []string{"데이터베이스", "database", " db", "db "}},
		{"third-party", []string{"외부 서비스", "외부서비스", "써드파티", "3rd"}},
		{"infrastructure", []string{"인프라", "서버 구성", "서버구성"}},
	}
)

// TaskConverter groups similar requests into tasks. Requests from
// InternalAuthors count as answered when deciding a task's status.
type TaskConverter struct {
	InternalAuthors []string
}

func (tc TaskConverter) Convert(rs []models.Request) TaskList {
	groups := groupSimilar(rs)
	tasks := make([]Task, 0, len(groups))
	for _, g := range groups {
		tasks = append(tasks, tc.task(g))
	}
	return TaskList{TotalRequests: len(rs), TotalTasks: len(tasks), Tasks: tasks}
}

// groupSimilar puts each request in exactly one group, seeded by the first
// ungrouped request in input order.
func groupSimilar(rs []models.Request) [][]models.Request {
	used := make([]bool, len(rs))
	var groups [][]models.Request
	for i := range rs {
		if used[i] {
			continue
		}
		used[i] = true
		group := []models.Request{rs[i]}
		for j := i + 1; j < len(rs); j++ {
			if !used[j] && Similarity(rs[i], rs[j]) > SimilarityThreshold {
				used[j] = true
				group = append(group, rs[j])
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Similarity scores two requests: 0.3 for a shared category, up to 0.5 for
// keyword overlap and 0.2 when they were made within a day of each other.
func Similarity(a, b models.Request) float64 {
	score := 0.0
	if a.Category == b.Category {
		score += 0.3
	}
	score += jaccard(keywords(content(a)), keywords(content(b))) * 0.5
	d := a.RequestedAt.Sub(b.RequestedAt)
	if d < 0 {
		d = -d
	}
	if d < 24*time.Hour {
		score += 0.2
	}
	return score
}

func content(r models.Request) string {
	if strings.TrimSpace(r.Description) != "" {
		return r.Description
	}
	return r.Title
}

func keywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(w)
		if utf8.RuneCountInString(w) <= 1 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]int, len(a)+len(b))
	for _, w := range a {
		set[w] |= 1
	}
	for _, w := range b {
		set[w] |= 2
	}
	both := 0
	for _, v := range set {
		if v == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}

func (tc TaskConverter) task(group []models.Request) Task {
	primary := group[0]
	related := make([]string, 0, len(group)-1)
	for _, r := range group[1:] {
		related = append(related, ref(r))
	}
	return Task{
		ID:              "TASK-" + ref(primary),
		Title:           taskTitle(group),
		Description:     taskDescription(group),
		Requester:       requesters(group),
		RequestDate:     primary.RequestedAt,
		Source:          primary.Source,
		SourceLink:      primary.OriginalURL,
		Priority:        highestPriority(group),
		Category:        primary.Category,
		Status:          tc.status(group),
		Tags:            taskTags(group),
		RelatedRequests: related,
		TechnicalDetails: TechnicalDetails{
			AffectedComponents: matchTags(group, componentTags),
			EstimatedEffort:    effort(group),
			Dependencies:       matchTags(group, dependencyTags),
		},
	}
}

// ref is the CR number, or the source item for requests not stored yet.
func ref(r models.Request) string {
	if r.CRNumber != "" {
		return r.CRNumber
	}
	return string(r.Source) + ":" + r.SourceID
}

func taskTitle(group []models.Request) string {
	if len(group) == 1 {
		text := content(group[0])
		if utf8.RuneCountInString(text) > 50 {
			return string([]rune(text)[:50]) + "..."
		}
		return text
	}
	common := commonKeywords(group)
	if len(common) > 3 {
		common = common[:3]
	}
	return fmt.Sprintf("[%s] %s 관련 요청 (%d건)", group[0].Category, strings.Join(common, ", "), len(group))
}

// commonKeywords orders keywords by how many requests use them, then by first use.
func commonKeywords(group []models.Request) []string {
	counts := map[string]int{}
	var order []string
	for _, r := range group {
		for _, k := range keywords(content(r)) {
			if counts[k] == 0 {
				order = append(order, k)
			}
			counts[k]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order
}

func taskDescription(group []models.Request) string {
	if len(group) == 1 {
		return content(group[0])
	}
	var b strings.Builder
	b.WriteString("## 관련 요청사항들\n\n")
	for i, r := range group {
		fmt.Fprintf(&b, "### %d. %s (%s)\n", i+1, r.RequesterName, r.Source)
		fmt.Fprintf(&b, "%s\n", content(r))
		fmt.Fprintf(&b, "- 요청일: %s\n", r.RequestedAt.Format("2006-01-02"))
		fmt.Fprintf(&b, "- 링크: %s\n\n", r.OriginalURL)
	}
	return b.String()
}

func highestPriority(group []models.Request) models.Priority {
	for _, p := range models.Priorities {
		for _, r := range group {
			if r.Priority == p {
				return p
			}
		}
	}
	return models.PriorityMedium
}

func requesters(group []models.Request) string {
	seen := map[string]bool{}
	var names []string
	for _, r := range group {
		if !seen[r.RequesterName] {
			seen[r.RequesterName] = true
			names = append(names, r.RequesterName)
		}
	}
	return strings.Join(names, ", ")
}

func (tc TaskConverter) status(group []models.Request) TaskStatus {
	answered := 0
	for _, r := range group {
		if answeredInternally(tc.InternalAuthors, r) {
			answered++
		}
	}
	switch {
	case answered == len(group):
		return TaskResolved
	case answered > 0:
		return TaskInProgress
	}
	return TaskUnresolved
}

func taskTags(group []models.Request) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, r := range group {
		add("source:" + string(r.Source))
		add("category:" + string(r.Category))
		if r.Priority == models.PriorityUrgent || r.Priority == models.PriorityHigh {
			add("priority:high")
		}
		for _, t := range matchTags([]models.Request{r}, featureTags) {
			add(t)
		}
	}
	return tags
}

func matchTags(group []models.Request, table []keywordTag) []string {
	out := []string{}
	for _, kt := range table {
		for _, r := range group {
			if containsAnyTerm(strings.ToLower(content(r)), kt.terms) {
				out = append(out, kt.tag)
				break
			}
		}
	}
	return out
}

func containsAnyTerm(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// effort is one point per request, plus priority weight and complexity terms.
func effort(group []models.Request) int {
	total := 0
	for _, r := range group {
		total++
		switch r.Priority {
		case models.PriorityUrgent:
			total += 2
		case models.PriorityHigh:
			total++
		}
		text := content(r)
		if containsAnyTerm(text, []string{"전체", "모든", "통합", "리팩토링"}) {
			total += 3
		}
		if containsAnyTerm(text, []string{"마이그레이션", "이전", "변경"}) {
			total += 2
		}
		if containsAnyTerm(text, []string{"신규", "새로운", "추가"}) {
			total++
		}
	}
	return total
}

// Tasks converts every request in the query window.
func (s *QueryService) Tasks(ctx context.Context, q ListQuery) (TaskList, error) {
	f, _, err := s.filter(q)
	if err != nil {
		return TaskList{}, err
	}
	f.Limit, f.Offset = 0, 0
	rs, err := s.Store.ListRequests(ctx, f)
	if err != nil {
		return TaskList{}, err
	}
	return TaskConverter{InternalAuthors: s.InternalAuthors}.Convert(rs), nil
}
