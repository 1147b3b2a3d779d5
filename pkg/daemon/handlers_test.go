package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/config"
)

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHandlersCalibrationRun(t *testing.T) {
	setupTestDaemon(t)
	router := setupRoutes()

	w := do(t, router, http.MethodGet, "/calibration/prompt", "")
	if w.Code != http.StatusOK || decode[string](t, w) != "  Calibration\n Push to Start" {
		t.Fatalf("unexpected prompt response %d %s", w.Code, w.Body)
	}

	var st calibration.Status
	for i := 0; i < 6; i++ {
		w = do(t, router, http.MethodPost, "/calibration/confirm", "")
		if w.Code != http.StatusCreated {
			t.Fatalf("confirm #%d: unexpected status %d: %s", i+1, w.Code, w.Body)
		}
		st = decode[calibration.Status](t, w)
	}
	if !st.Finished {
		t.Fatalf("expected finished after 6 confirms, got %s", st.State)
	}

	w = do(t, router, http.MethodGet, "/calibration", "")
	if got := decode[calibration.Status](t, w); !got.Finished || got.Results.Voltage == nil {
		t.Fatalf("unexpected status %+v", got)
	}

	w = do(t, router, http.MethodGet, "/calibration/record", "")
	rec := decode[RecordResponse](t, w)
	if !rec.Calibrated || rec.Record.Voltage.Scale == 1 {
		t.Fatalf("expected stored calibration, got %+v", rec)
	}

	w = do(t, router, http.MethodPost, "/calibration/reset", "")
	if got := decode[calibration.Status](t, w); got.State != calibration.StateInitialize || got.Finished {
		t.Fatalf("expected reset state, got %+v", got)
	}
}

func TestHandlersCorrect(t *testing.T) {
	setupTestDaemon(t)
	router := setupRoutes()

	w := do(t, router, http.MethodGet, "/calibration/correct?quantity=voltage&raw=2.5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body)
	}
	res := decode[CorrectResponse](t, w)
	if res.Corrected != 2.5 || res.Calibrated {
		t.Fatalf("expected identity correction before calibration, got %+v", res)
	}

	for _, path := range []string{
		"/calibration/correct?quantity=power&raw=1",
		"/calibration/correct?quantity=i&raw=abc",
	} {
		if w := do(t, router, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestHandlersConfirmSensorError(t *testing.T) {
	sim := setupTestDaemon(t)
	router := setupRoutes()

	do(t, router, http.MethodPost, "/calibration/confirm", "")
	do(t, router, http.MethodPost, "/calibration/confirm", "")
	sim.fail = http.ErrHandlerTimeout

	if w := do(t, router, http.MethodPost, "/calibration/confirm", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on sensor failure, got %d", w.Code)
	}
}

func TestHandlersReferences(t *testing.T) {
	setupTestDaemon(t)
	router := setupRoutes()

	w := do(t, router, http.MethodPut, "/calibration/references", `{"lowVoltage":2,"highVoltage":12,"lowCurrent":50,"highCurrent":500}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body)
	}

	w = do(t, router, http.MethodGet, "/config", "")
	raw := decode[config.RawFileConfig](t, w)
	if raw.HighVoltage == nil || *raw.HighVoltage != 12 {
		t.Fatalf("references not saved to config: %s", w.Body)
	}

	for _, body := range []string{
		`{"lowVoltage":12,"highVoltage":2,"lowCurrent":50,"highCurrent":500}`,
		`{"lowVoltage":2,"highVoltage":20,"lowCurrent":50,"highCurrent":500}`,
		`not json`,
	} {
		if w := do(t, router, http.MethodPut, "/calibration/references", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestHandlersSchedule(t *testing.T) {
	setupTestDaemon(t)
	router := setupRoutes()

	w := do(t, router, http.MethodPut, "/calibration/schedule", `"@every 720h"`)
	if w.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body)
	}
	if res := decode[ScheduleResponse](t, w); len(res.NextRuns) != 3 {
		t.Fatalf("expected 3 next runs, got %+v", res)
	}
	if conf.RecalibrationCron() != "@every 720h" {
		t.Fatalf("schedule not saved to config")
	}

	if w := do(t, router, http.MethodPost, "/calibration/schedule/skip", ""); w.Code != http.StatusCreated {
		t.Fatalf("skip: unexpected status %d: %s", w.Code, w.Body)
	}
	if w := do(t, router, http.MethodPost, "/calibration/schedule/postpone?duration=1h", ""); w.Code != http.StatusCreated {
		t.Fatalf("postpone: unexpected status %d: %s", w.Code, w.Body)
	}
	if w := do(t, router, http.MethodPost, "/calibration/schedule/postpone?duration=soon", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("postpone: expected 400, got %d", w.Code)
	}
	if w := do(t, router, http.MethodPut, "/calibration/schedule", `"whenever"`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid cron, got %d", w.Code)
	}

	w = do(t, router, http.MethodPut, "/calibration/schedule", `""`)
	if w.Code != http.StatusCreated {
		t.Fatalf("disabling schedule: unexpected status %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/calibration/schedule/skip", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 skipping a disabled schedule, got %d", w.Code)
	}
}

func TestWebsocketCommands(t *testing.T) {
	setupTestDaemon(t)
	srv := httptest.NewServer(setupRoutes())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var m wsMessage
	if err := conn.ReadJSON(&m); err != nil || m.Type != "status" {
		t.Fatalf("expected initial status, got %+v, %v", m, err)
	}

	if err := conn.WriteJSON(wsMessage{Type: "confirm"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The transition event and the status reply may arrive in either order.
	seen := map[string]bool{}
	for len(seen) < 2 {
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		seen[m.Type] = true
	}
	if !seen["status"] || !seen["calibration.transition"] {
		t.Fatalf("expected status and transition messages, got %v", seen)
	}
	if getCalibrationStatus().State != calibration.StatePromptLowV {
		t.Fatalf("websocket confirm did not advance the controller")
	}
}
