package httpapi

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/enterprise/riskcore/internal/errs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer() *Server {
	return &Server{log: zerolog.Nop()}
}

func TestWriteErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid request", errs.ErrInvalidRequest, 400},
		{"timeout", errs.ErrTimeout, 504},
		{"store unavailable", errs.ErrStoreUnavailable, 503},
		{"payer not found", errs.ErrPayerNotFound, 404},
		{"transaction not found", errs.ErrTransactionNotFound, 404},
		{"unrecognized error", errors.New("boom"), 500},
	}

	s := testServer()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			s.writeError(c, tc.err)

			if w.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, w.Code)
			}
		})
	}
}

func TestHealthzHandlerReportsHealthy(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	s.healthzHandler(c)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %v", body["status"])
	}
}
