package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"truckpay/internal/auth"
	"truckpay/internal/log"
	"truckpay/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishLoadSync(ctx context.Context, userID string, loadID int64, operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("%s:%d", operation, loadID))
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type testEnv struct {
	srv       *httptest.Server
	store     *storage.Repository
	publisher *fakePublisher
	token     string
	userID    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	prev := nowFunc
	// Wednesday; the sunday-based week starts 2026-01-04.
	nowFunc = func() time.Time { return time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = prev })

	repo, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	authSvc, err := auth.NewService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	pub := &fakePublisher{}
	logger := log.New(log.Config{Level: slog.LevelError, Component: log.ComponentApp})
	server := NewServer(":0", repo, authSvc, pub, logger, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	ts := httptest.NewServer(server.Server.Handler)
	t.Cleanup(ts.Close)

	env := &testEnv{srv: ts, store: repo, publisher: pub}

	status, body := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":                 "driver@example.com",
		"password":              "roadking99",
		"full_name":             "Pat Miller",
		"driver_type":           "solo",
		"company_deduction_pct": "10",
		"weekly_period":         "sunday",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup: status %d, body %s", status, body)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		t.Fatalf("signup response: %v", err)
	}
	env.token = tok.Token
	env.userID = tok.UserID
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	t.Run("duplicate email rejected", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
			"email":     "driver@example.com",
			"password":  "roadking99",
			"full_name": "Pat Miller",
		})
		if status != http.StatusConflict {
			t.Fatalf("status %d, want 409", status)
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
			"email":     "second@example.com",
			"password":  "short",
			"full_name": "Sam Lee",
		})
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status %d, want 422", status)
		}
	})

	t.Run("login issues token", func(t *testing.T) {
		status, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
			"email":    "driver@example.com",
			"password": "roadking99",
		})
		if status != http.StatusOK {
			t.Fatalf("status %d, body %s", status, body)
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
			"email":    "driver@example.com",
			"password": "wrongpass1",
		})
		if status != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", status)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		status, _ := env.do(t, http.MethodGet, "/api/loads", "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", status)
		}
	})
}

func TestLoadLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/loads", env.token, map[string]any{
		"rate":                  "1000",
		"company_deduction_pct": "10",
		"location_from":         "Chicago, IL",
		"location_to":           "Dallas, TX",
	})
	if status != http.StatusCreated {
		t.Fatalf("create load: status %d, body %s", status, body)
	}
	var created loadResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("create response: %v", err)
	}
	if created.DriverPayCents != 90000 {
		t.Fatalf("DriverPayCents = %d, want 90000", created.DriverPayCents)
	}
	if created.DateAdded != "2026-01-07" {
		t.Fatalf("DateAdded = %s", created.DateAdded)
	}
	if created.WeekPeriod == "" {
		t.Fatal("missing week label")
	}
	if env.publisher.count() != 1 {
		t.Fatalf("publish count = %d, want 1", env.publisher.count())
	}

	t.Run("validation failure writes nothing", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/api/loads", env.token, map[string]any{
			"rate":          "-5",
			"location_from": "A",
			"location_to":   "B",
		})
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status %d, want 422", status)
		}
		_, body := env.do(t, http.MethodGet, "/api/loads", env.token, nil)
		var loads []loadResponse
		if err := json.Unmarshal(body, &loads); err != nil {
			t.Fatal(err)
		}
		if len(loads) != 1 {
			t.Fatalf("len(loads) = %d, want 1", len(loads))
		}
	})

	t.Run("edit recomputes pay and keeps week", func(t *testing.T) {
		status, body := env.do(t, http.MethodPut, fmt.Sprintf("/api/loads/%d", created.ID), env.token, map[string]any{
			"rate":                  "1500",
			"company_deduction_pct": "30",
			"location_from":         "Chicago, IL",
			"location_to":           "Dallas, TX",
		})
		if status != http.StatusOK {
			t.Fatalf("status %d, body %s", status, body)
		}
		var updated loadResponse
		if err := json.Unmarshal(body, &updated); err != nil {
			t.Fatal(err)
		}
		if updated.DriverPayCents != 105000 {
			t.Fatalf("DriverPayCents = %d, want 105000", updated.DriverPayCents)
		}
		if updated.DateAdded != created.DateAdded || updated.WeekPeriod != created.WeekPeriod {
			t.Fatal("edit moved the load to another week")
		}
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/loads/%d", created.ID), env.token, nil)
		if status != http.StatusNoContent {
			t.Fatalf("status %d, want 204", status)
		}
		status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/api/loads/%d", created.ID), env.token, nil)
		if status != http.StatusNotFound {
			t.Fatalf("second delete: status %d, want 404", status)
		}
	})
}

func TestWeeklyDeductionSaveSemantics(t *testing.T) {
	env := newTestEnv(t)

	save := func(amount string) (int, []byte) {
		return env.do(t, http.MethodPut, "/api/deductions/weekly", env.token, map[string]any{
			"week_start": "2026-01-04",
			"type":       "insurance",
			"amount":     amount,
		})
	}

	if status, body := save("250.00"); status != http.StatusOK {
		t.Fatalf("save: status %d, body %s", status, body)
	}

	_, body := env.do(t, http.MethodGet, "/api/deductions/weekly?week_start=2026-01-04", env.token, nil)
	var rows []weeklyDeductionResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].AmountCents != 25000 {
		t.Fatalf("rows = %+v", rows)
	}

	t.Run("empty amount deletes the row", func(t *testing.T) {
		if status, _ := save(""); status != http.StatusOK {
			t.Fatal("clearing save failed")
		}
		_, body := env.do(t, http.MethodGet, "/api/deductions/weekly?week_start=2026-01-04", env.token, nil)
		var rows []weeklyDeductionResponse
		if err := json.Unmarshal(body, &rows); err != nil {
			t.Fatal(err)
		}
		if len(rows) != 0 {
			t.Fatalf("rows = %+v, want empty", rows)
		}
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		if status, _ := save("-10"); status != http.StatusUnprocessableEntity {
			t.Fatal("negative amount accepted")
		}
	})
}

func TestMileageRoundtrip(t *testing.T) {
	env := newTestEnv(t)

	start, end := int64(100), int64(550)
	status, body := env.do(t, http.MethodPut, "/api/mileage", env.token, map[string]any{
		"week_start":    "2026-01-04",
		"start_mileage": start,
		"end_mileage":   end,
	})
	if status != http.StatusOK {
		t.Fatalf("save mileage: status %d, body %s", status, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/mileage?week_start=2026-01-04", env.token, nil)
	var m mileageResponse
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if m.TotalMiles != 450 {
		t.Fatalf("TotalMiles = %d, want 450", m.TotalMiles)
	}

	t.Run("negative reading rejected", func(t *testing.T) {
		bad := int64(-10)
		status, _ := env.do(t, http.MethodPut, "/api/mileage", env.token, map[string]any{
			"week_start":    "2026-01-04",
			"start_mileage": bad,
		})
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status %d, want 422", status)
		}
	})
}

func TestWeekSummaryAndInvalidation(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/loads", env.token, map[string]any{
		"rate":                  "1000",
		"company_deduction_pct": "10",
		"location_from":         "Chicago, IL",
		"location_to":           "Dallas, TX",
	})

	_, body := env.do(t, http.MethodGet, "/api/summary/week", env.token, nil)
	var sum SummaryResponse
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.WeekStart != "2026-01-04" {
		t.Fatalf("WeekStart = %s", sum.WeekStart)
	}
	if sum.DriverPayCents != 90000 || sum.NetPayCents != 90000 {
		t.Fatalf("summary = %+v", sum)
	}

	// A weekly deduction write must invalidate the cached summary.
	env.do(t, http.MethodPut, "/api/deductions/weekly", env.token, map[string]any{
		"week_start": "2026-01-04",
		"type":       "fuel",
		"amount":     "300",
	})

	_, body = env.do(t, http.MethodGet, "/api/summary/week", env.token, nil)
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.NetPayCents != 60000 {
		t.Fatalf("NetPayCents = %d, want 60000 after deduction", sum.NetPayCents)
	}
	if sum.WeeklyDeductionCents != 30000 {
		t.Fatalf("WeeklyDeductionCents = %d", sum.WeeklyDeductionCents)
	}
}

func TestRangeSummary(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/loads", env.token, map[string]any{
		"rate":                  "1000",
		"company_deduction_pct": "0",
		"location_from":         "A City",
		"location_to":           "B City",
		"date_added":            "2026-01-05",
	})
	env.do(t, http.MethodPost, "/api/loads", env.token, map[string]any{
		"rate":                  "2000",
		"company_deduction_pct": "0",
		"location_from":         "C City",
		"location_to":           "D City",
		"date_added":            "2026-01-13",
	})

	_, body := env.do(t, http.MethodGet, "/api/summary/range?start=2026-01-04&end=2026-01-17", env.token, nil)
	var sum SummaryResponse
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Weeks != 2 {
		t.Fatalf("Weeks = %d, want 2", sum.Weeks)
	}
	if sum.GrossPayCents != 300000 {
		t.Fatalf("GrossPayCents = %d, want 300000", sum.GrossPayCents)
	}

	t.Run("invalid range rejected", func(t *testing.T) {
		status, _ := env.do(t, http.MethodGet, "/api/summary/range?start=2026-01-10&end=2026-01-04", env.token, nil)
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("status %d, want 422", status)
		}
	})
}

func TestExpensesAndTypes(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/expense-types", env.token, map[string]any{"name": "Fuel"})
	if status != http.StatusCreated {
		t.Fatalf("create type: status %d, body %s", status, body)
	}
	var typ struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &typ); err != nil {
		t.Fatal(err)
	}

	status, body = env.do(t, http.MethodPost, "/api/expenses", env.token, map[string]any{
		"type_id": typ.ID,
		"amount":  "75.50",
		"date":    "2026-01-06",
		"note":    "truck stop",
	})
	if status != http.StatusCreated {
		t.Fatalf("create expense: status %d, body %s", status, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/expenses", env.token, nil)
	var rows []expenseResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].AmountCents != 7550 || rows[0].TypeName != "Fuel" {
		t.Fatalf("rows = %+v", rows)
	}

	t.Run("orphaned expense reads unknown type", func(t *testing.T) {
		env.do(t, http.MethodDelete, fmt.Sprintf("/api/expense-types/%d", typ.ID), env.token, nil)
		_, body := env.do(t, http.MethodGet, "/api/expenses", env.token, nil)
		var rows []expenseResponse
		if err := json.Unmarshal(body, &rows); err != nil {
			t.Fatal(err)
		}
		if len(rows) != 1 || rows[0].TypeName != "unknown" {
			t.Fatalf("rows = %+v", rows)
		}
	})
}

func TestProfileUpdateChangesPeriod(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPut, "/api/profile", env.token, map[string]any{
		"full_name":             "Pat Miller",
		"driver_type":           "solo",
		"company_deduction_pct": "12",
		"weekly_period":         "monday",
	})
	if status != http.StatusOK {
		t.Fatalf("update profile: status %d, body %s", status, body)
	}
	var p profileResponse
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatal(err)
	}
	if p.WeeklyPeriod != "monday" || p.WeeklyPeriodDisplay != "Monday to Sunday" {
		t.Fatalf("profile = %+v", p)
	}

	// The new period takes effect for the current week: Jan 7 2026 now
	// resolves to the monday-based week starting Jan 5.
	_, body = env.do(t, http.MethodGet, "/api/summary/week", env.token, nil)
	var sum SummaryResponse
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.WeekStart != "2026-01-05" {
		t.Fatalf("WeekStart = %s, want 2026-01-05", sum.WeekStart)
	}
}

func TestExportImportRoundtrip(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/loads", env.token, map[string]any{
		"rate":                  "1200",
		"company_deduction_pct": "25",
		"location_from":         "Memphis, TN",
		"location_to":           "Tulsa, OK",
	})
	env.do(t, http.MethodPost, "/api/deductions", env.token, map[string]any{
		"type":     "trailer",
		"amount":   "300",
		"is_fixed": true,
	})

	status, exported := env.do(t, http.MethodGet, "/api/export", env.token, nil)
	if status != http.StatusOK {
		t.Fatalf("export: status %d", status)
	}

	// Import into a fresh account.
	status, body := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":     "other@example.com",
		"password":  "roadking99",
		"full_name": "Lee Jordan",
	})
	if status != http.StatusCreated {
		t.Fatalf("second signup: status %d, body %s", status, body)
	}
	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/import", bytes.NewReader(exported))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	resp, err := env.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("import: status %d, body %s", resp.StatusCode, data)
	}

	_, body = env.do(t, http.MethodGet, "/api/loads", tok.Token, nil)
	var loads []loadResponse
	if err := json.Unmarshal(body, &loads); err != nil {
		t.Fatal(err)
	}
	if len(loads) != 1 || loads[0].DriverPayCents != 90000 {
		t.Fatalf("imported loads = %+v", loads)
	}

	t.Run("garbage document rejected before write", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/import", bytes.NewReader([]byte(`{"format":"other"}`)))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
		resp, err := env.srv.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status %d, want 422", resp.StatusCode)
		}
	})
}

func TestSecurityHeadersApplied(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.srv.Client().Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}
