package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHealthChecker struct {
	alive bool
	ready bool
}

func (c *fakeHealthChecker) Liveness() bool                     { return c.alive }
func (c *fakeHealthChecker) Readiness(ctx context.Context) bool { return c.ready }
func (c *fakeHealthChecker) GetStatus() map[string]string {
	return map[string]string{"generator": "started"}
}

type fakeController struct {
	stopMessage string
	cleanupAt   int64
	cleanupErr  error
	ratios      []float64
	relocation  map[int]string
}

func (c *fakeController) RequestStop(message string) { c.stopMessage = message }

func (c *fakeController) CleanupOldBlocks(thresholdUnixMS int64) error {
	c.cleanupAt = thresholdUnixMS
	return c.cleanupErr
}

func (c *fakeController) UpdateRatioAndRelocation(ratios []float64, relocation map[int]string) {
	c.ratios = ratios
	c.relocation = relocation
}

func decodeControlResponse(t *testing.T, rec *httptest.ResponseRecorder) controlResponse {
	t.Helper()
	var resp controlResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestLivenessHandler(t *testing.T) {
	tests := []struct {
		name       string
		alive      bool
		wantStatus int
		wantBody   string
	}{
		{"alive", true, http.StatusOK, "alive"},
		{"not alive", false, http.StatusServiceUnavailable, "not alive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := LivenessHandler(&fakeHealthChecker{alive: tt.alive}, testLogger())
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantBody)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := ReadinessHandler(&fakeHealthChecker{alive: true, ready: true}, testLogger())
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Checks["generator"] != "started" {
		t.Errorf("checks = %v, want generator status included", resp.Checks)
	}
}

func TestReadinessHandlerNotReady(t *testing.T) {
	handler := ReadinessHandler(&fakeHealthChecker{alive: true, ready: false}, testLogger())
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStopHandler(t *testing.T) {
	controller := &fakeController{}
	handler := StopHandler(controller, testLogger())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"message":"rebalance"}`)
	handler(rec, httptest.NewRequest(http.MethodPost, "/control/stop", body))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if controller.stopMessage != "rebalance" {
		t.Errorf("stop message = %q, want rebalance", controller.stopMessage)
	}
	if resp := decodeControlResponse(t, rec); resp.Status != "ok" {
		t.Errorf("response status = %q, want ok", resp.Status)
	}
}

func TestStopHandlerDefaultMessage(t *testing.T) {
	controller := &fakeController{}
	handler := StopHandler(controller, testLogger())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/control/stop", strings.NewReader(`{}`)))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if controller.stopMessage == "" {
		t.Error("stop message empty, want default message")
	}
}

func TestStopHandlerRejectsGet(t *testing.T) {
	handler := StopHandler(&fakeController{}, testLogger())
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/control/stop", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestCleanupHandler(t *testing.T) {
	controller := &fakeController{}
	handler := CleanupHandler(controller, testLogger())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"threshold_unix_ms":1700000000000}`)
	handler(rec, httptest.NewRequest(http.MethodPost, "/control/cleanup", body))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if controller.cleanupAt != 1700000000000 {
		t.Errorf("threshold = %d, want 1700000000000", controller.cleanupAt)
	}
}

func TestCleanupHandlerRequiresThreshold(t *testing.T) {
	for _, body := range []string{`{}`, `{"threshold_unix_ms":0}`, `{"threshold_unix_ms":-5}`} {
		rec := httptest.NewRecorder()
		handler := CleanupHandler(&fakeController{}, testLogger())
		handler(rec, httptest.NewRequest(http.MethodPost, "/control/cleanup", strings.NewReader(body)))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
		if resp := decodeControlResponse(t, rec); resp.Error == "" {
			t.Errorf("body %s: response error empty, want message", body)
		}
	}
}

func TestCleanupHandlerPropagatesFailure(t *testing.T) {
	controller := &fakeController{cleanupErr: errors.New("backend unavailable")}
	handler := CleanupHandler(controller, testLogger())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"threshold_unix_ms":1700000000000}`)
	handler(rec, httptest.NewRequest(http.MethodPost, "/control/cleanup", body))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRatioHandler(t *testing.T) {
	controller := &fakeController{}
	handler := RatioHandler(controller, testLogger())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"ratios":[0.3,0.7],"relocation":{"1":"node-b"}}`)
	handler(rec, httptest.NewRequest(http.MethodPost, "/control/ratio", body))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(controller.ratios) != 2 || controller.ratios[0] != 0.3 || controller.ratios[1] != 0.7 {
		t.Errorf("ratios = %v, want [0.3 0.7]", controller.ratios)
	}
	if got := controller.relocation[1]; got != "node-b" {
		t.Errorf("relocation[1] = %q, want node-b", got)
	}
}

func TestRatioHandlerRejectsOutOfRange(t *testing.T) {
	for _, body := range []string{`{"ratios":[-0.1]}`, `{"ratios":[0.5,1.5]}`} {
		rec := httptest.NewRecorder()
		handler := RatioHandler(&fakeController{}, testLogger())
		handler(rec, httptest.NewRequest(http.MethodPost, "/control/ratio", strings.NewReader(body)))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRatioHandlerRejectsMalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	handler := RatioHandler(&fakeController{}, testLogger())
	handler(rec, httptest.NewRequest(http.MethodPost, "/control/ratio", strings.NewReader(`{not json`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
