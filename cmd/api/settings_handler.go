package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RuntimeConfig holds settings that can change without a restart
type RuntimeConfig struct {
	OllamaBaseURL string `json:"ollama_base_url"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

var (
	runtimeConfig     RuntimeConfig
	runtimeConfigLock sync.RWMutex
)

// InitRuntimeConfig seeds the runtime settings from the static config
func InitRuntimeConfig(ollamaBaseURL, ollamaModel string) {
	runtimeConfigLock.Lock()
	defer runtimeConfigLock.Unlock()
	runtimeConfig = RuntimeConfig{
		OllamaBaseURL: strings.TrimRight(ollamaBaseURL, "/"),
		OllamaModel:   ollamaModel,
	}
}

func GetRuntimeOllamaBaseURL() string {
	runtimeConfigLock.RLock()
	defer runtimeConfigLock.RUnlock()
	return runtimeConfig.OllamaBaseURL
}

func GetRuntimeOllamaModel() string {
	runtimeConfigLock.RLock()
	defer runtimeConfigLock.RUnlock()
	return runtimeConfig.OllamaModel
}

// OllamaPinger checks an Ollama server and returns its HTTP status
type OllamaPinger interface {
	Ping(ctx context.Context, baseURL string) (int, error)
}

// UpdateOllamaSettingsRequest is the body of PUT /api/settings/ollama
type UpdateOllamaSettingsRequest struct {
	OllamaBaseURL string `json:"ollama_base_url" binding:"required,url"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

// GetOllamaSettings returns the current Ollama configuration
// GET /api/settings/ollama
func GetOllamaSettings(c *gin.Context) {
	runtimeConfigLock.RLock()
	cfg := runtimeConfig
	runtimeConfigLock.RUnlock()

	c.JSON(http.StatusOK, cfg)
}

// UpdateOllamaSettings switches the Ollama server used for extraction
// PUT /api/settings/ollama
func UpdateOllamaSettings(c *gin.Context) {
	var req UpdateOllamaSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runtimeConfigLock.Lock()
	runtimeConfig.OllamaBaseURL = strings.TrimRight(req.OllamaBaseURL, "/")
	if req.OllamaModel != "" {
		runtimeConfig.OllamaModel = req.OllamaModel
	}
	cfg := runtimeConfig
	runtimeConfigLock.Unlock()

	c.JSON(http.StatusOK, cfg)
}

// TestOllamaConnection reports whether an Ollama server answers
// POST /api/settings/ollama/test
func TestOllamaConnection(pinger OllamaPinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OllamaBaseURL string `json:"ollama_base_url"`
		}
		// An empty body tests the current server.
		_ = c.ShouldBindJSON(&req)
		baseURL := strings.TrimRight(req.OllamaBaseURL, "/")
		if baseURL == "" {
			baseURL = GetRuntimeOllamaBaseURL()
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status, err := pinger.Ping(ctx, baseURL)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": err.Error()})
			return
		}
		if status != http.StatusOK {
			c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "status_code": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connected": true, "ollama_base_url": baseURL})
	}
}
