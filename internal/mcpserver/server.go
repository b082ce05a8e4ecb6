// Package mcpserver exposes request queries and collection runs as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/models"
	"github.com/freedom_case_2/crcollector/internal/service"
)

const (
	Name    = "crcollector"
	Version = "1.0.0"
)

type Tools struct {
	Query      *service.QueryService
	Collection *service.CollectionService
	Logger     zerolog.Logger
}

func New(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(Name, Version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_requests",
		mcp.WithDescription("List collected customer requests, highest priority first."),
		mcp.WithString("project", mcp.Description("Project label, e.g. fanlight")),
		mcp.WithNumber("days", mcp.Description("Lookback in days (default 7)")),
		mcp.WithString("source", mcp.Description("slack, figma or confluence"), mcp.Enum("slack", "figma", "confluence")),
		mcp.WithString("status", mcp.Description("Request status filter")),
		mcp.WithString("priority", mcp.Description("urgent, high, medium or low"), mcp.Enum("urgent", "high", "medium", "low")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of requests (default 100)")),
	), t.ListRequests)

	s.AddTool(mcp.NewTool("summary_stats",
		mcp.WithDescription("Count customer requests by source, priority, category and status."),
		mcp.WithString("project", mcp.Description("Project label")),
		mcp.WithNumber("days", mcp.Description("Lookback in days (default 7)")),
		mcp.WithString("source", mcp.Description("slack, figma or confluence")),
	), t.SummaryStats)

	s.AddTool(mcp.NewTool("llm_view",
		mcp.WithDescription("Open requests grouped by priority, requests answered by the internal team, and how many need immediate attention."),
		mcp.WithString("project", mcp.Description("Project label")),
		mcp.WithNumber("days", mcp.Description("Lookback in days (default 7)")),
		mcp.WithString("source", mcp.Description("slack, figma or confluence")),
	), t.LLMView)

	s.AddTool(mcp.NewTool("tasks",
		mcp.WithDescription("Group similar stored requests into tasks with tags, affected components and an effort estimate."),
		mcp.WithString("project", mcp.Description("Project label")),
		mcp.WithNumber("days", mcp.Description("Lookback in days (default 7)")),
		mcp.WithString("source", mcp.Description("slack, figma or confluence")),
	), t.Tasks)

	s.AddTool(mcp.NewTool("run_collection",
		mcp.WithDescription("Collect new customer requests from the configured sources now."),
		mcp.WithArray("sources", mcp.Description("Collector names or sources; empty runs all"), mcp.WithStringItems()),
		mcp.WithNumber("days", mcp.Description("Collect the last N days instead of the daily window")),
	), t.RunCollection)

	return s
}

func (t *Tools) ListRequests(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := query(req)
	q.Status = req.GetString("status", "")
	q.Priority = req.GetString("priority", "")
	q.Limit = req.GetInt("limit", 0)
	items, err := t.Query.ListRequests(ctx, q)
	if err != nil {
		return t.failure(err)
	}
	return jsonResult(items)
}

func (t *Tools) SummaryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := t.Query.SummaryStats(ctx, query(req))
	if err != nil {
		return t.failure(err)
	}
	return jsonResult(sum)
}

func (t *Tools) LLMView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := t.Query.LLMView(ctx, query(req))
	if err != nil {
		return t.failure(err)
	}
	return jsonResult(view)
}

func (t *Tools) Tasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := t.Query.Tasks(ctx, query(req))
	if err != nil {
		return t.failure(err)
	}
	return jsonResult(tasks)
}

func (t *Tools) RunCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sources := req.GetStringSlice("sources", nil)
	if unknown := t.Collection.UnknownSources(sources); len(unknown) > 0 {
		return mcp.NewToolResultError("unknown collector names: " + strings.Join(unknown, ", ")), nil
	}
	window := t.Collection.Window(req.GetInt("days", 0))
	res := t.Collection.RunCollectionWindow(ctx, models.TriggerOnDemand, sources, window)
	return jsonResult(res)
}

func query(req mcp.CallToolRequest) service.ListQuery {
	return service.ListQuery{
		Project: req.GetString("project", ""),
		Days:    req.GetInt("days", 0),
		Source:  req.GetString("source", ""),
	}
}

// failure reports bad input as a tool error and everything else as a call error.
func (t *Tools) failure(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, db.ErrInvalidInput) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t.Logger.Error().Err(err).Msg("mcp tool failed")
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// ServeStdio blocks serving MCP over stdin/stdout.
func ServeStdio(t *Tools) error {
	return server.ServeStdio(New(t))
}
