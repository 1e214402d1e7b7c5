package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(t.TempDir(), nil, nil)

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("ожидался status=ok, получен %v", resp["status"])
	}
	if resp["service"] != serviceName {
		t.Errorf("ожидался service=%s, получен %v", serviceName, resp["service"])
	}
}

func TestHealthReady(t *testing.T) {
	okCheck := func(context.Context) error { return nil }
	failCheck := func(context.Context) error { return errors.New("подключение отклонено") }

	t.Run("Все зависимости доступны", func(t *testing.T) {
		h := NewHealthHandler(t.TempDir(), okCheck, okCheck)

		rec := httptest.NewRecorder()
		h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Недоступная база данных", func(t *testing.T) {
		h := NewHealthHandler(t.TempDir(), failCheck, okCheck)

		rec := httptest.NewRecorder()
		h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("ожидался статус 503, получен %d", rec.Code)
		}

		var resp struct {
			Status string `json:"status"`
			Checks map[string]struct {
				Status string `json:"status"`
			} `json:"checks"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("ошибка разбора ответа: %v", err)
		}
		if resp.Status != "fail" {
			t.Errorf("ожидался status=fail, получен %s", resp.Status)
		}
		if resp.Checks["postgresql"].Status != "fail" {
			t.Errorf("ожидался fail для postgresql, получен %s", resp.Checks["postgresql"].Status)
		}
		if resp.Checks["mongodb"].Status != "ok" {
			t.Errorf("ожидался ok для mongodb, получен %s", resp.Checks["mongodb"].Status)
		}
	})

	t.Run("Недоступный workspace", func(t *testing.T) {
		h := NewHealthHandler("/nonexistent/workspace", okCheck, okCheck)

		rec := httptest.NewRecorder()
		h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("ожидался статус 503, получен %d", rec.Code)
		}
	})
}
