package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestRespondOK(t *testing.T) {
	router := setupRouter()
	router.GET("/test", func(c *gin.Context) {
		RespondOK(c, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("RespondOK() status = %v, want %v", w.Code, http.StatusOK)
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("RespondOK() response status = %v, want ok", response["status"])
	}
}

func TestRespondCreated(t *testing.T) {
	router := setupRouter()
	router.POST("/test", func(c *gin.Context) {
		RespondCreated(c, gin.H{"id": "vid-1"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/test", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("RespondCreated() status = %v, want %v", w.Code, http.StatusCreated)
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["id"] != "vid-1" {
		t.Errorf("RespondCreated() response id = %v, want vid-1", response["id"])
	}
}

func TestRespondNoContent(t *testing.T) {
	router := setupRouter()
	router.DELETE("/test", func(c *gin.Context) {
		RespondNoContent(c)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/test", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("RespondNoContent() status = %v, want %v", w.Code, http.StatusNoContent)
	}
	if w.Body.String() != "" {
		t.Errorf("RespondNoContent() body = %v, want empty", w.Body.String())
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrCodeBadRequest, "Invalid request")

	if resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("NewErrorResponse() code = %v, want %v", resp.Error.Code, ErrCodeBadRequest)
	}
	if resp.Error.Message != "Invalid request" {
		t.Errorf("NewErrorResponse() message = %v, want Invalid request", resp.Error.Message)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(c *gin.Context)
		wantStatus int
		wantCode   ErrorCode
	}{
		{"bad request", func(c *gin.Context) { RespondBadRequest(c, "m") }, http.StatusBadRequest, ErrCodeBadRequest},
		{"unauthorized", func(c *gin.Context) { RespondUnauthorized(c, "m") }, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"not found", func(c *gin.Context) { RespondNotFound(c, "m") }, http.StatusNotFound, ErrCodeNotFound},
		{"conflict", func(c *gin.Context) { RespondConflict(c, ErrCodeDuplicateAsset, "m") }, http.StatusConflict, ErrCodeDuplicateAsset},
		{"internal", func(c *gin.Context) { RespondInternalError(c, "m") }, http.StatusInternalServerError, ErrCodeInternal},
		{"validation", func(c *gin.Context) { RespondValidationError(c, "m") }, http.StatusBadRequest, ErrCodeValidation},
		{"bad gateway", func(c *gin.Context) { RespondBadGateway(c, "m") }, http.StatusBadGateway, ErrCodeProvider},
		{"unavailable", func(c *gin.Context) { RespondUnavailable(c, ErrCodeSigningNotConfigured, "m") }, http.StatusServiceUnavailable, ErrCodeSigningNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter()
			router.GET("/test", tt.respond)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			if response.Error.Code != tt.wantCode {
				t.Errorf("code = %v, want %v", response.Error.Code, tt.wantCode)
			}
			if response.Error.Message != "m" {
				t.Errorf("message = %v, want m", response.Error.Message)
			}
		})
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name                 string
		total, limit, offset int
		wantMore             bool
	}{
		{name: "first page of many", total: 120, limit: 50, offset: 0, wantMore: true},
		{name: "exact last page", total: 100, limit: 50, offset: 50, wantMore: false},
		{name: "past the end", total: 10, limit: 50, offset: 50, wantMore: false},
		{name: "empty", total: 0, limit: 50, offset: 0, wantMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.total, tt.limit, tt.offset)
			if p.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", p.HasMore, tt.wantMore)
			}
			if p.Total != tt.total || p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("NewPagination() = %+v", p)
			}
		})
	}
}
