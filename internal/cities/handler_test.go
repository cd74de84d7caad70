package cities

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestHandlerCreateAndGet(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Enricher: &fakeEnricher{}, Now: fixedNow}
	r := newTestRouter(svc)

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cities", strings.NewReader(`{"name":"부산","nameEn":"Busan","country":"KR"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created cityResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Name != "부산" || !created.NeedsEnrichment || created.ImageURL != nil {
		t.Fatalf("unexpected response %+v", created)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cities/"+created.ID, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"imageUrl":null`) {
		t.Fatalf("expected explicit null image url, got %s", resp.Body.String())
	}
}

func TestHandlerErrors(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo(), Enricher: &fakeEnricher{}, Now: fixedNow}
	r := newTestRouter(svc)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "malformed body", method: http.MethodPost, path: "/api/v1/cities", body: `{`, status: http.StatusBadRequest},
		{name: "missing names", method: http.MethodPost, path: "/api/v1/cities", body: `{"country":"KR"}`, status: http.StatusBadRequest},
		{name: "unknown city", method: http.MethodGet, path: "/api/v1/cities/nope", status: http.StatusNotFound},
		{name: "enrich unknown city", method: http.MethodPost, path: "/api/v1/cities/nope/enrich", status: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestHandlerEnrichSchedulesSingleRun(t *testing.T) {
	enricher := &fakeEnricher{}
	repo := NewMemoryRepo()
	seedCity(t, repo, "c1", "Oslo")
	r := newTestRouter(&Service{Repo: repo, Enricher: enricher, Now: fixedNow})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/cities/c1/enrich", nil))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if got := enricher.triggered(); len(got) != 1 || got[0] != "c1" {
		t.Fatalf("unexpected triggers %v", got)
	}
}
