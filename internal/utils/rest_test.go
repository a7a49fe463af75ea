package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{
			name:    "bad request",
			code:    http.StatusBadRequest,
			message: "source_ref is required",
		},
		{
			name:    "unauthorized",
			code:    http.StatusUnauthorized,
			message: "Authentication required",
		},
		{
			name:    "rate limited",
			code:    http.StatusTooManyRequests,
			message: "Rate limit exceeded",
		},
		{
			name:    "internal server error",
			code:    http.StatusInternalServerError,
			message: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", ct)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Error != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Error, tt.message)
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("struct payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := struct {
			RequestID string `json:"request_id"`
			Status    string `json:"status"`
		}{
			RequestID: "b2c7d8e9",
			Status:    "accepted",
		}

		if err := RespondWithJSON(w, http.StatusAccepted, payload); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if w.Code != http.StatusAccepted {
			t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusAccepted)
		}

		var response map[string]string
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response["request_id"] != payload.RequestID {
			t.Errorf("RespondWithJSON() request_id = %s, want %s", response["request_id"], payload.RequestID)
		}
		if response["status"] != payload.Status {
			t.Errorf("RespondWithJSON() status field = %s, want %s", response["status"], payload.Status)
		}
	})

	t.Run("map payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := map[string]any{
			"cached": true,
			"count":  5,
		}

		if err := RespondWithJSON(w, http.StatusOK, payload); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}

		var response map[string]any
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response["cached"] != true {
			t.Errorf("RespondWithJSON() cached = %v, want true", response["cached"])
		}
		if int(response["count"].(float64)) != 5 {
			t.Errorf("RespondWithJSON() count = %v, want 5", response["count"])
		}
	})

	t.Run("nil payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := RespondWithJSON(w, http.StatusOK, nil); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if body := w.Body.String(); body != "null\n" {
			t.Logf("RespondWithJSON() with nil payload body = %q", body)
		}
	})
}
