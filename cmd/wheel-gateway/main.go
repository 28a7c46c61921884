package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nathan234/wheellog-decoders/internal/appconfig"
	"github.com/nathan234/wheellog-decoders/internal/apperr"
	"github.com/nathan234/wheellog-decoders/pkg/wheel"
	"github.com/nathan234/wheellog-decoders/pkg/wheel/factory"
)

// Gateway wraps a CachingFactory and the in-memory snapshots it has
// produced per wheel type, so repeated /decode calls for the same type
// keep feeding the same decoder instance.
type Gateway struct {
	factory *factory.CachingFactory
	cfg     wheel.DecoderConfig

	states map[wheel.Type]wheel.State
}

// DecodeRequest is the JSON body for POST /api/v1/decode.
type DecodeRequest struct {
	WheelType string `json:"wheel_type"`
	DataHex   string `json:"data_hex"`
}

// DecodeResponse is the JSON body returned by POST /api/v1/decode.
type DecodeResponse struct {
	HasNewData bool         `json:"has_new_data"`
	State      *wheel.State `json:"state,omitempty"`
	News       string       `json:"news,omitempty"`
	Commands   int          `json:"pending_commands"`
}

func main() {
	cfgFile := appconfig.Load()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	gw := &Gateway{
		factory: factory.NewCachingFactory(wheel.SystemClock{}),
		cfg:     wheel.DefaultDecoderConfig(),
		states:  make(map[wheel.Type]wheel.State),
	}
	gw.cfg.Password = cfgFile.Password

	api := router.Group("/api/v1")
	{
		api.POST("/decode", gw.handleDecode)
		api.POST("/reset", gw.handleReset)
		api.GET("/types", gw.handleTypes)
		api.GET("/health", gw.handleHealth)
	}

	srv := &http.Server{
		Addr:    cfgFile.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("wheel-gateway listening on %s", cfgFile.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down wheel-gateway...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("gateway shutdown error: %v", err)
	}
	log.Println("wheel-gateway stopped")
}

// handleDecode feeds DataHex through the cached decoder for WheelType and
// returns the resulting snapshot, if the bytes produced a complete frame.
func (gw *Gateway) handleDecode(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, apperr.New(apperr.CodeBadRequest, "invalid request body"))
		return
	}

	t, ok := wheel.ParseType(req.WheelType)
	if !ok {
		respondErr(c, http.StatusBadRequest, apperr.New(apperr.CodeUnknownWheelType, "unrecognized wheel_type").
			WithDetail("wheel_type", req.WheelType))
		return
	}

	data, err := hex.DecodeString(req.DataHex)
	if err != nil {
		respondErr(c, http.StatusBadRequest, apperr.New(apperr.CodeBadRequest, "data_hex is not valid hex"))
		return
	}

	dec, err := gw.factory.Get(t)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, apperr.New(apperr.CodeInternal, err.Error()))
		return
	}

	prev := gw.states[t]
	result, ok := dec.Decode(data, prev, gw.cfg)
	if !ok {
		c.JSON(http.StatusOK, DecodeResponse{HasNewData: false})
		return
	}
	gw.states[t] = result.NewState

	c.JSON(http.StatusOK, DecodeResponse{
		HasNewData: result.HasNewData,
		State:      &result.NewState,
		News:       result.News,
		Commands:   len(result.Commands),
	})
}

// handleReset drops the cached decoder (and its snapshot) for WheelType so
// the next /decode starts a fresh connection.
func (gw *Gateway) handleReset(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, apperr.New(apperr.CodeBadRequest, "invalid request body"))
		return
	}
	t, ok := wheel.ParseType(req.WheelType)
	if !ok {
		respondErr(c, http.StatusBadRequest, apperr.New(apperr.CodeUnknownWheelType, "unrecognized wheel_type").
			WithDetail("wheel_type", req.WheelType))
		return
	}
	gw.factory.Forget(t)
	delete(gw.states, t)
	c.JSON(http.StatusOK, gin.H{"reset": t.String()})
}

// handleTypes lists every wheel type the factory can construct.
func (gw *Gateway) handleTypes(c *gin.Context) {
	names := make([]string, 0)
	for _, t := range factory.SupportedTypes() {
		names = append(names, t.String())
	}
	c.JSON(http.StatusOK, gin.H{"types": names})
}

// handleHealth is a liveness probe for the gateway process itself.
func (gw *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func respondErr(c *gin.Context, status int, e *apperr.Error) {
	c.JSON(status, gin.H{"error": e.Code, "message": e.Message, "details": e.Details})
}
