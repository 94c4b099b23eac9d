package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/iddsorg/idds/internal/store/memory"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestCreateAndGetRequest(t *testing.T) {
	s := NewServer(memory.New())
	engine := s.Engine()

	body, _ := json.Marshal(map[string]any{"scope": "test", "name": "req1"})
	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := int64(created["RequestID"].(float64))

	getReq := httptest.NewRequest(http.MethodGet, "/requests/"+itoa(id), nil)
	getRec := httptest.NewRecorder()
	engine.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetMissingRequestReturns404(t *testing.T) {
	s := NewServer(memory.New())
	engine := s.Engine()

	req := httptest.NewRequest(http.MethodGet, "/requests/999", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := NewServer(memory.New())
	engine := s.Engine()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id int64) string {
	buf, _ := json.Marshal(id)
	return string(buf)
}
