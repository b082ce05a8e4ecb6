package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/db"
)

func healthz(t *testing.T, store db.Store) int {
	t.Helper()
	h := &Handler{Store: store, Logger: zerolog.Nop()}

	r := gin.New()
	r.GET("/healthz", h.Healthz)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestHealthzMemory(t *testing.T) {
	if code := healthz(t, db.NewMemoryStore(time.UTC)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestHealthzIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	store, err := db.Open(context.Background(), config.Config{StoreDriver: "postgres", DatabaseURL: url})
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	if code := healthz(t, store); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}
