package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/collector"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/providers/slack"
	"github.com/freedom_case_2/crcollector/internal/utils"
)

// Poster is the slice of the Slack client reports need.
type Poster interface {
	PostMessage(ctx context.Context, channel, text string) (slack.PostedMessage, error)
}

type ReportService struct {
	Store     db.Store
	Poster    Poster
	Channel   string
	OutputDir string
	Location  *time.Location
	Logger    zerolog.Logger

	now func() time.Time
}

func (s *ReportService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *ReportService) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// GenerateDaily aggregates the requests of a window and stores the report.
func (s *ReportService) GenerateDaily(ctx context.Context, w collector.Window) (models.DailyReport, error) {
	rs, err := s.Store.GetByDateWindow(ctx, w.Start, w.End)
	if err != nil {
		return models.DailyReport{}, fmt.Errorf("load window: %w", err)
	}
	now := s.clock()
	end := w.End.In(s.loc())
	rep := models.DailyReport{
		ReportDate:    time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, s.loc()),
		WindowStart:   w.Start,
		WindowEnd:     w.End,
		TotalRequests: len(rs),
		ByCategory:    map[string]int{},
		ByPriority:    map[string]int{},
		BySource:      map[string]int{},
		Requests:      rs,
		GeneratedAt:   now,
	}
	for _, r := range rs {
		rep.ByCategory[string(r.Category)]++
		rep.ByPriority[string(r.Priority)]++
		rep.BySource[string(r.Source)]++
	}
	saved, err := s.Store.SaveDailyReport(ctx, rep)
	if err != nil {
		return models.DailyReport{}, fmt.Errorf("save report: %w", err)
	}
	s.Logger.Info().Str("report_id", saved.ID).Int("total", saved.TotalRequests).Msg("daily report generated")
	return saved, nil
}

// Export writes the markdown rendering to OutputDir and records the path.
func (s *ReportService) Export(ctx context.Context, rep models.DailyReport) (models.DailyReport, error) {
	dir := s.OutputDir
	if dir == "" {
		dir = "./exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rep, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, "customer_requests_"+rep.ReportDate.In(s.loc()).Format("20060102")+".md")
	if err := os.WriteFile(path, []byte(s.RenderMarkdown(rep)), 0o644); err != nil {
		return rep, fmt.Errorf("write export: %w", err)
	}
	rep.ExportedFile = path
	saved, err := s.Store.SaveDailyReport(ctx, rep)
	if err != nil {
		return rep, fmt.Errorf("save report: %w", err)
	}
	s.Logger.Info().Str("file", path).Msg("report exported")
	return saved, nil
}

// Post sends the Slack summary and records where it landed.
func (s *ReportService) Post(ctx context.Context, rep models.DailyReport) (models.DailyReport, error) {
	if s.Poster == nil || s.Channel == "" {
		return rep, fmt.Errorf("%w: slack report channel is not configured", db.ErrInvalidInput)
	}
	msg, err := s.Poster.PostMessage(ctx, s.Channel, s.RenderSlack(rep))
	if err != nil {
		return rep, fmt.Errorf("post report: %w", err)
	}
	rep.PostedChannelID = msg.Channel
	rep.PostedMessageTS = msg.TS
	saved, err := s.Store.SaveDailyReport(ctx, rep)
	if err != nil {
		return rep, fmt.Errorf("save report: %w", err)
	}
	return saved, nil
}

var (
	sourceLabels = map[models.Source]string{
		models.SourceSlack:      "💬 Slack",
		models.SourceConfluence: "📝 Confluence",
		models.SourceFigma:      "🎨 Figma",
	}
	categoryLabels = map[models.Category]string{
		models.CategoryBug:           "🐛 버그",
		models.CategoryImprovement:   "🔧 개선",
		models.CategoryNewFeature:    "✨ 신규기능",
		models.CategoryInquiry:       "❓ 문의",
		models.CategoryDocumentation: "📄 문서",
		models.CategoryComment:       "💭 코멘트",
		models.CategoryOther:         "📌 기타",
	}
	priorityLabels = map[models.Priority]string{
		models.PriorityUrgent: "🔴 긴급",
		models.PriorityHigh:   "🟡 높음",
		models.PriorityMedium: "🟢 보통",
		models.PriorityLow:    "⚪ 낮음",
	}
	prioritySections = []struct {
		priority models.Priority
		heading  string
	}{
		{models.PriorityUrgent, "## 🔴 긴급 요청"},
		{models.PriorityHigh, "## 🟡 높은 우선순위 요청"},
		{models.PriorityMedium, "## 🟢 보통 우선순위 요청"},
		{models.PriorityLow, "## ⚪ 낮은 우선순위 요청"},
	}
)

func label[K comparable](labels map[K]string, k K) string {
	if l, ok := labels[k]; ok {
		return l
	}
	return fmt.Sprint(k)
}

// ElapsedDays counts whole days between requested and now, ignoring direction.
func ElapsedDays(requested, now time.Time) int {
	d := now.Sub(requested)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

func ElapsedLabel(days int) string {
	switch {
	case days == 0:
		return "오늘"
	case days < 7:
		return fmt.Sprintf("%d일 전", days)
	case days < 30:
		return fmt.Sprintf("%d주 전", days/7)
	case days < 365:
		return fmt.Sprintf("%d개월 전", days/30)
	default:
		return fmt.Sprintf("%d년 전", days/365)
	}
}

func (s *ReportService) formatTime(t time.Time) string {
	return t.In(s.loc()).Format("2006-01-02 15:04")
}

// RenderMarkdown lays out the report the way the exported file looks.
// Elapsed times are measured from the report's generation time.
func (s *ReportService) RenderMarkdown(rep models.DailyReport) string {
	now := rep.GeneratedAt
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("# 일일 고객 요청 리포트")
	line("")
	line("**수집 일시**: %s", s.formatTime(now))
	line("**수집 범위**: %s ~ %s", s.formatTime(rep.WindowStart), s.formatTime(rep.WindowEnd))
	line("")
	line("## 📊 요약")
	line("")

	var stale, staleHigh int
	for _, r := range rep.Requests {
		days := ElapsedDays(r.RequestedAt, now)
		if days > 7 {
			stale++
		}
		if days > 3 && (r.Priority == models.PriorityUrgent || r.Priority == models.PriorityHigh) {
			staleHigh++
		}
	}
	line("- **총 요청 수**: %d건", rep.TotalRequests)
	if stale > 0 {
		line("- **⚠️ 7일 이상 미해결**: %d건", stale)
	}
	if staleHigh > 0 {
		line("- **⏰ 3일 이상 높은 우선순위 미해결**: %d건", staleHigh)
	}
	line("- **채널별**:")
	line("  - Slack: %d건", rep.BySource[string(models.SourceSlack)])
	line("  - Confluence: %d건", rep.BySource[string(models.SourceConfluence)])
	line("  - Figma: %d건", rep.BySource[string(models.SourceFigma)])
	line("- **우선순위별**:")
	for _, p := range models.Priorities {
		line("  - %s: %d건", priorityLabels[p], rep.ByPriority[string(p)])
	}
	line("- **카테고리별**:")
	for _, c := range models.Categories {
		line("  - %s: %d건", categoryLabels[c], rep.ByCategory[string(c)])
	}
	line("")
	line("---")
	line("")

	for _, sec := range prioritySections {
		var group []models.Request
		for _, r := range rep.Requests {
			if r.Priority == sec.priority {
				group = append(group, r)
			}
		}
		if len(group) == 0 {
			continue
		}
		line(sec.heading)
		line("")
		for _, r := range group {
			days := ElapsedDays(r.RequestedAt, now)
			marker := ""
			switch {
			case days > 7:
				marker = " ⚠️"
			case days > 3:
				marker = " ⏰"
			}
			line("### [%s] %s%s", r.CRNumber, r.Title, marker)
			line("")
			requester := r.RequesterName
			if r.RequesterEmail != "" {
				requester += " (" + r.RequesterEmail + ")"
			}
			line("- **요청자**: %s", requester)
			line("- **출처**: %s - %s", label(sourceLabels, r.Source), r.ChannelName)
			line("- **요청 시간**: %s (**%s**, %d일 경과)", s.formatTime(r.RequestedAt), ElapsedLabel(days), days)
			line("- **카테고리**: %s", label(categoryLabels, r.Category))
			if r.OriginalURL != "" {
				line("- **원본 링크**: [보기](%s)", r.OriginalURL)
			}
			line("")
			line("**내용**:")
			line("```")
			line("%s", r.Description)
			line("```")
			line("")
		}
	}

	line("---")
	line("")
	line("## 📋 전체 요청 목록")
	line("")
	line("| CR번호 | 요청 시간 | 경과 | 출처 | 요청자 | 제목 | 카테고리 | 우선순위 |")
	line("|--------|-----------|------|------|--------|------|----------|----------|")
	for _, r := range rep.Requests {
		line("| %s | %s | %s | %s | %s | %s | %s | %s |",
			r.CRNumber, s.formatTime(r.RequestedAt), ElapsedLabel(ElapsedDays(r.RequestedAt, now)),
			label(sourceLabels, r.Source), cell(r.RequesterName), cell(r.Title),
			label(categoryLabels, r.Category), label(priorityLabels, r.Priority))
	}
	return b.String()
}

func cell(v string) string {
	return strings.ReplaceAll(v, "|", "\\|")
}

// RenderSlack is the short mrkdwn summary posted to the report channel.
func (s *ReportService) RenderSlack(rep models.DailyReport) string {
	var b strings.Builder
	date := rep.ReportDate.In(s.loc()).Format("2006-01-02")
	if rep.TotalRequests == 0 {
		fmt.Fprintf(&b, "📊 *일일 고객 요청 리포트* (%s)\n수집된 고객 요청이 없습니다.", date)
		return b.String()
	}
	fmt.Fprintf(&b, "📊 *일일 고객 요청 리포트* (%s)\n\n", date)
	fmt.Fprintf(&b, "📈 *요약*\n• 총 요청: *%d건*\n", rep.TotalRequests)
	fmt.Fprintf(&b, "• 긴급: %d건 | 높음: %d건 | 보통: %d건 | 낮음: %d건\n",
		rep.ByPriority[string(models.PriorityUrgent)], rep.ByPriority[string(models.PriorityHigh)],
		rep.ByPriority[string(models.PriorityMedium)], rep.ByPriority[string(models.PriorityLow)])

	var urgent, high []models.Request
	for _, r := range rep.Requests {
		switch r.Priority {
		case models.PriorityUrgent:
			urgent = append(urgent, r)
		case models.PriorityHigh:
			high = append(high, r)
		}
	}
	if len(urgent) > 0 {
		fmt.Fprintf(&b, "\n🔴 *긴급 요청 (%d건)*\n", len(urgent))
		for _, r := range urgent[:min(5, len(urgent))] {
			fmt.Fprintf(&b, "*[%s]* %s\n요청자: %s | %s\n\"%s\"\n",
				r.CRNumber, r.Title, r.RequesterName, r.ChannelName, utils.TruncateRunes(r.Description, 100))
		}
	}
	if len(high) > 0 {
		fmt.Fprintf(&b, "\n🟡 *주요 요청 (%d건)*\n", len(high))
		for _, r := range high[:min(3, len(high))] {
			fmt.Fprintf(&b, "*[%s]* %s - %s\n", r.CRNumber, r.Title, r.RequesterName)
		}
	}
	b.WriteString("\n📊 *카테고리별 분포*\n")
	for _, c := range models.Categories {
		if n := rep.ByCategory[string(c)]; n > 0 || c == models.CategoryOther {
			fmt.Fprintf(&b, "• %s: %d건\n", categoryLabels[c], n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
