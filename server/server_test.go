package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musubi/config"
	"musubi/utils"
)

// setupTestEnvironment initializes the test environment
func setupTestEnvironment() {
	if utils.InfoLogger == nil {
		utils.InfoLogger = log.New(os.Stdout, "TEST-INFO: ", log.Ldate|log.Ltime)
	}
	if utils.ErrorLogger == nil {
		utils.ErrorLogger = log.New(os.Stderr, "TEST-ERROR: ", log.Ldate|log.Ltime)
	}
}

func testServerConfig() *config.Config {
	return &config.Config{
		Port:           8443,
		ShutdownGrace:  2 * time.Second,
		MetricsEnabled: true,
	}
}

// TestReadyState tests the ReadyState struct and its methods
func TestReadyState(t *testing.T) {
	readyState := NewReadyState(nil, nil, testServerConfig())

	t.Run("Initial state should be not ready", func(t *testing.T) {
		assert.False(t, readyState.IsFullyReady())
		assert.False(t, readyState.IsSchemaReady())
		assert.False(t, readyState.IsRedisReady())
		assert.False(t, readyState.IsWebhooksReady())
	})

	t.Run("Mark components ready individually", func(t *testing.T) {
		readyState.MarkSchemaReady()
		assert.True(t, readyState.IsSchemaReady())
		assert.False(t, readyState.IsFullyReady())

		readyState.MarkRedisReady()
		assert.True(t, readyState.IsRedisReady())
		assert.False(t, readyState.IsFullyReady())

		readyState.MarkWebhooksReady()
		assert.True(t, readyState.IsWebhooksReady())
		assert.True(t, readyState.IsFullyReady())
	})

	t.Run("Getters return wired dependencies", func(t *testing.T) {
		assert.Nil(t, readyState.GetDB())
		assert.Nil(t, readyState.GetRedis())
		assert.NotNil(t, readyState.GetConfig())
	})
}

func TestHealthLiveEndpoint(t *testing.T) {
	setupTestEnvironment()
	app := CreateFiberApp(time.Now(), NewReadyState(nil, nil, testServerConfig()))

	req := httptest.NewRequest("GET", "/api/v1/health/live", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "live", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHealthReadyWhileInitializing(t *testing.T) {
	setupTestEnvironment()
	readyState := NewReadyState(nil, nil, testServerConfig())
	readyState.MarkSchemaReady()
	app := CreateFiberApp(time.Now(), readyState)

	req := httptest.NewRequest("GET", "/api/v1/health/ready", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 503, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "initializing", body["status"])
	assert.Equal(t, true, body["schema_ready"])
	assert.Equal(t, false, body["redis_ready"])
	assert.Equal(t, false, body["webhooks_ready"])
}

func TestRootBanner(t *testing.T) {
	setupTestEnvironment()
	app := CreateFiberApp(time.Now(), NewReadyState(nil, nil, testServerConfig()))

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "musubi")
	assert.Contains(t, string(raw), "webhook")
}

func TestRequestIDHeader(t *testing.T) {
	setupTestEnvironment()
	app := CreateFiberApp(time.Now(), NewReadyState(nil, nil, testServerConfig()))

	req := httptest.NewRequest("GET", "/api/v1/health/live", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	setupTestEnvironment()
	app := CreateFiberApp(time.Now(), NewReadyState(nil, nil, testServerConfig()))
	RegisterMetricsRoute(app)

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "go_goroutines")
}
