package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/freedom_case_2/crcollector/internal/models"
)

type requestRow struct {
	ID             string `gorm:"primaryKey"`
	CRNumber       string `gorm:"index"`
	Source         string `gorm:"uniqueIndex:idx_requests_source_key"`
	SourceID       string `gorm:"uniqueIndex:idx_requests_source_key"`
	Project        string `gorm:"index"`
	RequesterID    string
	RequesterName  string
	RequesterEmail string
	Title          string
	Description    string
	Category       string
	Priority       string
	ChannelID      string
	ChannelName    string
	ThreadTS       string
	OriginalURL    string
	Attachments    string
	Status         string
	Assignee       string
	RequestedAt    time.Time `gorm:"index"`
	CollectedAt    time.Time
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (requestRow) TableName() string { return "customer_requests" }

type reportRow struct {
	ID              string `gorm:"primaryKey"`
	ReportDate      time.Time
	WindowStart     time.Time
	WindowEnd       time.Time
	TotalRequests   int
	ByCategory      string
	ByPriority      string
	BySource        string
	RequestIDs      string
	GeneratedAt     time.Time
	PostedChannelID string
	PostedMessageTS string
	ExportedFile    string
}

func (reportRow) TableName() string { return "daily_reports" }

type runRow struct {
	ID              string `gorm:"primaryKey"`
	Trigger         string
	StartedAt       time.Time `gorm:"index"`
	FinishedAt      time.Time
	PerSourceCounts string
	PerSourceErrors string
	Skipped         string
	Truncated       string
	TotalDurationMs int64
}

func (runRow) TableName() string { return "collection_runs" }

// SQLiteStore is the single-file durable store. Times are kept in UTC so
// that the text comparisons sqlite performs on them stay chronological.
type SQLiteStore struct {
	DB  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func OpenSQLite(path string, loc *time.Location) (*SQLiteStore, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLiteStore(gdb, loc)
}

func NewSQLiteStore(gdb *gorm.DB, loc *time.Location) (*SQLiteStore, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" databases on a single connection
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.AutoMigrate(&requestRow{}, &reportRow{}, &runRow{}); err != nil {
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SQLiteStore{DB: gdb, loc: loc, now: time.Now}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *SQLiteStore) SaveRequest(ctx context.Context, r models.Request) (models.Request, error) {
	saved, inserted, err := s.InsertIfAbsent(ctx, r)
	if err != nil {
		return models.Request{}, err
	}
	if !inserted {
		return models.Request{}, fmt.Errorf("request %s/%s: %w", r.Source, r.SourceID, ErrAlreadyExists)
	}
	return saved, nil
}

func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, r models.Request) (models.Request, bool, error) {
	now := s.now()
	r, err := prepare(r, now)
	if err != nil {
		return models.Request{}, false, err
	}
	inserted := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prefix := crPrefix(now, s.loc)
		var n int64
		if err := tx.Model(&requestRow{}).Where("cr_number LIKE ?", prefix+"%").Count(&n).Error; err != nil {
			return err
		}
		r.CRNumber = formatCR(prefix, int(n)+1)
		row := toRequestRow(r)
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.Request{}, false, fmt.Errorf("request %s/%s: %w", r.Source, r.SourceID, ErrAlreadyExists)
	}
	if err != nil {
		return models.Request{}, false, fmt.Errorf("insert request %s/%s: %w", r.Source, r.SourceID, err)
	}
	return r, inserted, nil
}

func (s *SQLiteStore) IsDuplicate(ctx context.Context, sourceID string, source models.Source) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&requestRow{}).
		Where("source = ? AND source_id = ?", string(source), sourceID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]models.Request, error) {
	return s.ListRequests(ctx, ListFilter{})
}

func (s *SQLiteStore) GetByDateWindow(ctx context.Context, start, end time.Time) ([]models.Request, error) {
	q := s.DB.WithContext(ctx).
		Where("requested_at >= ? AND requested_at <= ?", start.UTC(), end.UTC())
	return s.find(q)
}

func (s *SQLiteStore) GetByCRNumber(ctx context.Context, cr string) (models.Request, error) {
	var row requestRow
	err := s.DB.WithContext(ctx).Where("cr_number = ?", cr).Order("collected_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Request{}, fmt.Errorf("request %s: %w", cr, ErrNotFound)
	}
	if err != nil {
		return models.Request{}, err
	}
	return fromRequestRow(row), nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, cr string, status models.Status, assignee string) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	updates := map[string]any{
		"status":     string(status),
		"updated_at": s.now().UTC(),
	}
	if assignee != "" {
		updates["assignee"] = assignee
	}
	return s.DB.WithContext(ctx).Model(&requestRow{}).Where("cr_number = ?", cr).Updates(updates).Error
}

func (s *SQLiteStore) ListRequests(ctx context.Context, f ListFilter) ([]models.Request, error) {
	q := s.DB.WithContext(ctx)
	if f.Project != "" {
		q = q.Where("project = ?", f.Project)
	}
	if f.Source != "" {
		q = q.Where("source = ?", string(f.Source))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", string(f.Priority))
	}
	if !f.Since.IsZero() {
		q = q.Where("requested_at >= ?", f.Since.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return s.find(q)
}

func (s *SQLiteStore) find(q *gorm.DB) ([]models.Request, error) {
	var rows []requestRow
	if err := q.Order(priorityOrder).Order("collected_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRequestRow(row))
	}
	return out, nil
}

func (s *SQLiteStore) SaveDailyReport(ctx context.Context, rep models.DailyReport) (models.DailyReport, error) {
	rep = prepareReport(rep, s.now())
	ids := make([]string, 0, len(rep.Requests))
	for _, r := range rep.Requests {
		ids = append(ids, r.ID)
	}
	row := reportRow{
		ID:              rep.ID,
		ReportDate:      rep.ReportDate.UTC(),
		WindowStart:     rep.WindowStart.UTC(),
		WindowEnd:       rep.WindowEnd.UTC(),
		TotalRequests:   rep.TotalRequests,
		ByCategory:      encodeJSON(rep.ByCategory),
		ByPriority:      encodeJSON(rep.ByPriority),
		BySource:        encodeJSON(rep.BySource),
		RequestIDs:      encodeJSON(ids),
		GeneratedAt:     rep.GeneratedAt.UTC(),
		PostedChannelID: rep.PostedChannelID,
		PostedMessageTS: rep.PostedMessageTS,
		ExportedFile:    rep.ExportedFile,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"posted_channel_id", "posted_message_ts", "exported_file"}),
	}).Create(&row).Error
	if err != nil {
		return models.DailyReport{}, fmt.Errorf("save daily report %s: %w", rep.ID, err)
	}
	return rep, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run models.RunResult) error {
	if run.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	row := runRow{
		ID:              run.RunID,
		Trigger:         string(run.Trigger),
		StartedAt:       run.StartedAt.UTC(),
		FinishedAt:      run.FinishedAt.UTC(),
		PerSourceCounts: encodeJSON(run.PerSourceCounts),
		PerSourceErrors: encodeJSON(run.PerSourceErrors),
		Skipped:         encodeJSON(run.Skipped),
		Truncated:       encodeJSON(run.Truncated),
		TotalDurationMs: run.TotalDurationMs,
	}
	return s.DB.WithContext(ctx).Create(&row).Error
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (models.RunResult, error) {
	var row runRow
	err := s.DB.WithContext(ctx).Order("started_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RunResult{}, fmt.Errorf("collection run: %w", ErrNotFound)
	}
	if err != nil {
		return models.RunResult{}, err
	}
	run := models.RunResult{
		RunID:           row.ID,
		Trigger:         models.Trigger(row.Trigger),
		StartedAt:       row.StartedAt,
		FinishedAt:      row.FinishedAt,
		TotalDurationMs: row.TotalDurationMs,
	}
	_ = json.Unmarshal([]byte(row.PerSourceCounts), &run.PerSourceCounts)
	_ = json.Unmarshal([]byte(row.PerSourceErrors), &run.PerSourceErrors)
	_ = json.Unmarshal([]byte(row.Skipped), &run.Skipped)
	_ = json.Unmarshal([]byte(row.Truncated), &run.Truncated)
	return run, nil
}

func toRequestRow(r models.Request) requestRow {
	return requestRow{
		ID:             r.ID,
		CRNumber:       r.CRNumber,
		Source:         string(r.Source),
		SourceID:       r.SourceID,
		Project:        r.Project,
		RequesterID:    r.RequesterID,
		RequesterName:  r.RequesterName,
		RequesterEmail: r.RequesterEmail,
		Title:          r.Title,
		Description:    r.Description,
		Category:       string(r.Category),
		Priority:       string(r.Priority),
		ChannelID:      r.ChannelID,
		ChannelName:    r.ChannelName,
		ThreadTS:       r.ThreadTS,
		OriginalURL:    r.OriginalURL,
		Attachments:    encodeJSON(nonNil(r.Attachments)),
		Status:         string(r.Status),
		Assignee:       r.Assignee,
		RequestedAt:    r.RequestedAt.UTC(),
		CollectedAt:    r.CollectedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func fromRequestRow(row requestRow) models.Request {
	r := models.Request{
		ID:             row.ID,
		CRNumber:       row.CRNumber,
		Source:         models.Source(row.Source),
		SourceID:       row.SourceID,
		Project:        row.Project,
		RequesterID:    row.RequesterID,
		RequesterName:  row.RequesterName,
		RequesterEmail: row.RequesterEmail,
		Title:          row.Title,
		Description:    row.Description,
		Category:       models.Category(row.Category),
		Priority:       models.Priority(row.Priority),
		ChannelID:      row.ChannelID,
		ChannelName:    row.ChannelName,
		ThreadTS:       row.ThreadTS,
		OriginalURL:    row.OriginalURL,
		Status:         models.Status(row.Status),
		Assignee:       row.Assignee,
		RequestedAt:    row.RequestedAt,
		CollectedAt:    row.CollectedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	_ = json.Unmarshal([]byte(row.Attachments), &r.Attachments)
	if len(r.Attachments) == 0 {
		r.Attachments = nil
	}
	return r
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
