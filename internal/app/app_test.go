package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capi-relay/internal/config"
	"capi-relay/internal/logging"
)

const shopOrigin = "https://shop.example.com"

type fakeSecrets struct {
	secret *config.GraphSecret
	err    error
	calls  int
}

func (f *fakeSecrets) GetGraphSecret(_ context.Context, _ string) (*config.GraphSecret, error) {
	f.calls++
	return f.secret, f.err
}

type fakePolicyLoader struct {
	policy  *config.Policy
	profile string
}

func (f *fakePolicyLoader) LoadPolicy(_ context.Context, profile string) (*config.Policy, error) {
	f.profile = profile
	return f.policy, nil
}

func testConfig(endpoint string) *config.AppConfig {
	return &config.AppConfig{
		CORS: config.CORSConfig{AllowedOrigins: []string{shopOrigin}, MaxAge: time.Hour},
		Graph: config.GraphConfig{
			APIEndpoint: endpoint,
			APIVersion:  "v19.0",
			PixelID:     "123",
			AccessToken: "token",
			Timeout:     time.Second,
		},
		Server: config.ServerConfig{MaxBodyBytes: 64 << 10},
	}
}

func trackRequest() events.APIGatewayProxyRequest {
	body := `{"eventName":"Purchase","eventSourceUrl":"https://shop.example.com/thanks","eventId":"order-1","eventTime":` +
		strconv.FormatInt(time.Now().Unix(), 10) + `,"value":10,"currency":"EUR"}`
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Headers:    map[string]string{"Origin": shopOrigin, "User-Agent": "test"},
		Body:       body,
		RequestContext: events.APIGatewayProxyRequestContext{
			Identity: events.APIGatewayRequestIdentity{SourceIP: "203.0.113.7"},
		},
	}
}

func TestApp_EndToEnd(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"events_received":1,"messages":[],"fbtrace_id":"abc"}`))
	}))
	defer upstream.Close()

	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), Options{
		Config:     testConfig(upstream.URL),
		Logger:     logging.Discard(),
		Registerer: reg,
	})
	require.NoError(t, err)

	resp, err := a.APIHandler().Handle(context.Background(), trackRequest())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/v19.0/123/events", gotPath)
	assert.Equal(t, "token", gotToken)

	data := gotBody["data"].([]any)
	require.Len(t, data, 1)
	event := data[0].(map[string]any)
	assert.Equal(t, "website", event["action_source"])
	assert.Equal(t, "203.0.113.7", event["user_data"].(map[string]any)["client_ip_address"])
	assert.Equal(t, "EUR", event["custom_data"].(map[string]any)["currency"])

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestApp_MissingCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Graph.AccessToken = ""

	a, err := New(context.Background(), Options{Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)

	resp, err := a.APIHandler().Handle(context.Background(), trackRequest())
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, "server configuration error")
	assert.NotContains(t, resp.Body, "token")
}

func TestApp_CredentialsFromSecret(t *testing.T) {
	var gotToken string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		_, _ = w.Write([]byte(`{"events_received":1}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Graph.AccessToken = ""
	cfg.Graph.SecretName = "capi/relay"
	secrets := &fakeSecrets{secret: &config.GraphSecret{AccessToken: "from-secret"}}

	a, err := New(context.Background(), Options{Config: cfg, Logger: logging.Discard(), Secrets: secrets})
	require.NoError(t, err)

	resp, err := a.APIHandler().Handle(context.Background(), trackRequest())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from-secret", gotToken)
	assert.Equal(t, 1, secrets.calls)
}

func TestApp_SecretFailureLeavesRelayUnconfigured(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Graph.AccessToken = ""
	cfg.Graph.SecretName = "capi/relay"

	a, err := New(context.Background(), Options{
		Config:  cfg,
		Logger:  logging.Discard(),
		Secrets: &fakeSecrets{err: errors.New("access denied")},
	})
	require.NoError(t, err)

	resp, err := a.APIHandler().Handle(context.Background(), trackRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestApp_PolicySources(t *testing.T) {
	t.Run("policy file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("trust_window:\n  lookback: { minutes: 60 }\n"), 0o600))

		cfg := testConfig("http://127.0.0.1:1")
		cfg.PolicyFile = path

		p, err := loadPolicy(context.Background(), cfg, nil, logging.Discard())
		require.NoError(t, err)
		assert.Equal(t, 60, p.TrustWindow.Lookback.Minutes)
	})

	t.Run("invalid policy file fails start-up", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("millisecond_threshold: -1\n"), 0o600))

		cfg := testConfig("http://127.0.0.1:1")
		cfg.PolicyFile = path

		_, err := New(context.Background(), Options{Config: cfg, Logger: logging.Discard()})
		assert.Error(t, err)
	})

	t.Run("appconfig profile", func(t *testing.T) {
		loader := &fakePolicyLoader{policy: config.DefaultPolicy()}
		cfg := testConfig("http://127.0.0.1:1")
		cfg.AppConfig.PolicyProfile = "relay"

		p, err := loadPolicy(context.Background(), cfg, loader, logging.Discard())
		require.NoError(t, err)
		assert.Same(t, loader.policy, p)
		assert.Equal(t, "relay", loader.profile)
	})

	t.Run("defaults", func(t *testing.T) {
		p, err := loadPolicy(context.Background(), testConfig("http://127.0.0.1:1"), nil, logging.Discard())
		require.NoError(t, err)
		assert.Equal(t, config.DefaultPolicy(), p)
	})
}

func TestApp_HTTPHandler(t *testing.T) {
	a, err := New(context.Background(), Options{Config: testConfig("http://127.0.0.1:1"), Logger: logging.Discard()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/track", strings.NewReader(""))
	req.Header.Set("Origin", shopOrigin)
	rec := httptest.NewRecorder()

	a.HTTPHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}
