package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rrens/checkpoint-recovery/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantCode int
		contains string
	}{
		{"valid", `{"message_id":"m1"}`, true, http.StatusOK, ""},
		{"malformed", `{"message_id":`, false, http.StatusBadRequest, "invalid request body"},
		{"missing field", `{}`, false, http.StatusUnprocessableEntity, `"rule":"required"`},
		{"too long", `{"message_id":"` + strings.Repeat("x", 256) + `"}`, false, http.StatusUnprocessableEntity, `"rule":"max"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var input domain.CheckpointRequest
			ok := decode(rec, req, &input)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
			if ok {
				assert.Equal(t, "m1", input.MessageID)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, rec.Body.String())
}
