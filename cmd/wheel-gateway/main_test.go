package main

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nathan234/wheellog-decoders/pkg/wheel"
	"github.com/nathan234/wheellog-decoders/pkg/wheel/factory"
)

func newTestRouter() (*gin.Engine, *Gateway) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	gw := &Gateway{
		factory: factory.NewCachingFactory(wheel.SystemClock{}),
		cfg:     wheel.DefaultDecoderConfig(),
		states:  make(map[wheel.Type]wheel.State),
	}
	api := router.Group("/api/v1")
	{
		api.POST("/decode", gw.handleDecode)
		api.POST("/reset", gw.handleReset)
		api.GET("/types", gw.handleTypes)
		api.GET("/health", gw.handleHealth)
	}
	return router, gw
}

func TestHandleTypesListsEveryWheelType(t *testing.T) {
	router, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/types", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gotway")
	assert.Contains(t, rec.Body.String(), "ninebot_z")
}

func TestHandleDecodeRejectsUnknownWheelType(t *testing.T) {
	router, _ := newTestRouter()
	body := `{"wheel_type":"not_a_real_wheel","data_hex":""}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decode", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_wheel_type")
}

func TestHandleDecodeRejectsBadHex(t *testing.T) {
	router, _ := newTestRouter()
	body := `{"wheel_type":"kingsong","data_hex":"not-hex"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decode", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDecodeReturnsNoNewDataForIncompleteFrame(t *testing.T) {
	router, _ := newTestRouter()
	body := `{"wheel_type":"kingsong","data_hex":"` + hex.EncodeToString([]byte{0xAA, 0x55}) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decode", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_new_data":false`)
}

func TestHandleResetDropsCachedDecoder(t *testing.T) {
	router, gw := newTestRouter()
	gw.states[wheel.TypeKingsong] = wheel.State{BatteryLevel: 42}
	_, _ = gw.factory.Get(wheel.TypeKingsong)

	body := `{"wheel_type":"kingsong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reset", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	_, stillThere := gw.states[wheel.TypeKingsong]
	assert.False(t, stillThere)
}

func TestHandleHealthReportsHealthy(t *testing.T) {
	router, _ := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
