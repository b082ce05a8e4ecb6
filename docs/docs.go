package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Customer Request Collector",
    "description": "Collects customer requests from Confluence, Figma and Slack, classifies them and serves lists, summaries and daily reports",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"},
    "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
  },
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "ok"}}}},
    "/api/requests": {"get": {"tags": ["requests"], "summary": "List customer requests",
      "parameters": [
        {"name": "project", "in": "query", "type": "string"},
        {"name": "days", "in": "query", "type": "integer", "default": 7},
        {"name": "source", "in": "query", "type": "string", "enum": ["slack", "figma", "confluence"]},
        {"name": "status", "in": "query", "type": "string"},
        {"name": "priority", "in": "query", "type": "string", "enum": ["urgent", "high", "medium", "low"]},
        {"name": "limit", "in": "query", "type": "integer", "default": 100},
        {"name": "offset", "in": "query", "type": "integer", "default": 0}
      ],
      "responses": {"200": {"description": "items"}, "400": {"description": "invalid filter"}}}},
    "/api/requests/{cr}": {"get": {"tags": ["requests"], "summary": "Customer request by CR number",
      "parameters": [{"name": "cr", "in": "path", "required": true, "type": "string"}],
      "responses": {"200": {"description": "request"}, "404": {"description": "not found"}}}},
    "/api/requests/{cr}/status": {"patch": {"tags": ["requests"], "summary": "Update request status", "security": [{"AdminKey": []}],
      "parameters": [
        {"name": "cr", "in": "path", "required": true, "type": "string"},
        {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string"}, "assignee": {"type": "string"}}}}
      ],
      "responses": {"200": {"description": "updated request"}, "404": {"description": "not found"}}}},
    "/api/requests/llm": {"get": {"tags": ["requests"], "summary": "Open and answered requests digested for language models",
      "parameters": [
        {"name": "project", "in": "query", "type": "string"},
        {"name": "days", "in": "query", "type": "integer", "default": 7},
        {"name": "source", "in": "query", "type": "string"}
      ],
      "responses": {"200": {"description": "digest"}, "400": {"description": "invalid filter"}}}},
    "/api/tasks": {"get": {"tags": ["tasks"], "summary": "Stored requests grouped into tasks",
      "parameters": [
        {"name": "project", "in": "query", "type": "string"},
        {"name": "days", "in": "query", "type": "integer", "default": 7},
        {"name": "source", "in": "query", "type": "string"}
      ],
      "responses": {"200": {"description": "tasks"}, "400": {"description": "invalid filter"}}}},
    "/api/tasks/convert": {"post": {"tags": ["tasks"], "summary": "Group the posted requests into tasks",
      "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"requests": {"type": "array", "items": {"type": "object"}}}}}],
      "responses": {"200": {"description": "tasks"}, "400": {"description": "invalid body"}}}},
    "/api/summary": {"get": {"tags": ["requests"], "summary": "Request counts",
      "parameters": [
        {"name": "project", "in": "query", "type": "string"},
        {"name": "days", "in": "query", "type": "integer", "default": 7},
        {"name": "source", "in": "query", "type": "string"}
      ],
      "responses": {"200": {"description": "summary"}}}},
    "/api/runs/latest": {"get": {"tags": ["runs"], "summary": "Latest collection run", "responses": {"200": {"description": "run"}, "404": {"description": "no runs"}}}},
    "/api/sources": {"get": {"tags": ["runs"], "summary": "Configured collectors", "responses": {"200": {"description": "collectors"}}}},
    "/api/collect": {"post": {"tags": ["runs"], "summary": "Run a collection pass", "security": [{"AdminKey": []}],
      "parameters": [{"name": "body", "in": "body", "schema": {"type": "object", "properties": {"sources": {"type": "array", "items": {"type": "string"}}, "trigger": {"type": "string"}, "days": {"type": "integer"}}}}],
      "responses": {"200": {"description": "run result"}, "400": {"description": "unknown collector names"}}}},
    "/api/cron/collect": {"get": {"tags": ["runs"], "summary": "Scheduled collection for external cron", "security": [{"BearerAuth": []}],
      "responses": {"200": {"description": "run result"}, "401": {"description": "unauthorized"}}}},
    "/api/reports/daily": {"post": {"tags": ["reports"], "summary": "Generate the daily report", "security": [{"AdminKey": []}],
      "parameters": [{"name": "body", "in": "body", "schema": {"type": "object", "properties": {"days": {"type": "integer"}, "export": {"type": "boolean"}, "post": {"type": "boolean"}}}}],
      "responses": {"200": {"description": "report"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
