package ecr

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecr/ecrviewer/internal/platform/gate"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		want        string
		wantChanged bool
	}{
		{"valid params untouched", "page=3&itemsPerPage=25", "page=3&itemsPerPage=25", false},
		{"negative page dropped", "page=-2&itemsPerPage=3", "itemsPerPage=3", true},
		{"duplicates keep first", "page=2&itemsPerPage=4&page=3", "page=2&itemsPerPage=4", true},
		{"non-numeric items per page", "itemsPerPage=abc&search=ann", "search=ann", true},
		{"zero page", "page=0", "", true},
		{"unknown column drops direction", "columnId=eicr_id&direction=ASC&page=2", "page=2", true},
		{"lowercase direction", "columnId=patient&direction=asc", "columnId=patient", true},
		{"direction without column", "direction=DESC", "direction=DESC", false},
		{"duplicate condition", "condition=COVID-19&condition=Mumps", "condition=COVID-19", true},
		{"empty condition kept", "condition=", "condition=", false},
		{"duplicate search", "search=a&search=b", "search=a", true},
		{"unknown params untouched", "foo=1&foo=2", "foo=1&foo=2", false},
		{"preset range", "dateRange=last-7-days", "dateRange=last-7-days", false},
		{"preset drops stray dates", "dateRange=last-7-days&dates=2024-01-01%7C2024-01-02", "dateRange=last-7-days", true},
		{"valid custom", "dateRange=custom&dates=2024-01-01%7C2024-01-02", "dateRange=custom&dates=2024-01-01%7C2024-01-02", false},
		{"custom with bad dates", "dateRange=custom&dates=2024-02-01%7C2024-01-01", "", true},
		{"dates without range", "dates=2024-01-01%7C2024-01-02&page=1", "page=1", true},
		{"unknown range", "dateRange=forever&search=x", "search=x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := gate.ParseQuery(tt.raw)
			changed := SanitizeQuery(q)
			if changed != tt.wantChanged {
				t.Errorf("expected changed=%v, got %v", tt.wantChanged, changed)
			}
			if got := q.Encode(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeQuery_IsIdempotent(t *testing.T) {
	q := gate.ParseQuery("page=-1&columnId=x&direction=up&dateRange=custom&dates=bad&condition=a&condition=b")
	SanitizeQuery(q)
	if SanitizeQuery(q) {
		t.Errorf("second pass changed %q", q.Encode())
	}
}

func serveParams(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(gate.NewChain(zerolog.Nop(), NewParamStage("/ecr-viewer")).Middleware())
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/ecr-viewer", ok)
	e.GET("/ecr-viewer/", ok)
	e.GET("/ecr-viewer/view-data", ok)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestParamStage_RedirectsToCorrectedURL(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/ecr-viewer?page=-2&itemsPerPage=3", "/ecr-viewer?itemsPerPage=3"},
		{"/ecr-viewer?page=2&itemsPerPage=4&page=3", "/ecr-viewer?page=2&itemsPerPage=4"},
		{"/ecr-viewer/?columnId=nope", "/ecr-viewer/"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serveParams(t, tt.target)
			if rec.Code != http.StatusTemporaryRedirect {
				t.Fatalf("expected 307, got %d", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.want {
				t.Errorf("expected Location %q, got %q", tt.want, loc)
			}
		})
	}
}

func TestParamStage_PassesGoodParams(t *testing.T) {
	if rec := serveParams(t, "/ecr-viewer?page=3"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestParamStage_IgnoresOtherPaths(t *testing.T) {
	if rec := serveParams(t, "/ecr-viewer/view-data?id=1&page=-1"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
