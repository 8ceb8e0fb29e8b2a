package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/cibridge/pkg/ci"
	"github.com/edulab/cibridge/pkg/ci/dummy"
	"github.com/edulab/cibridge/pkg/result"
)

func testServer(t *testing.T, backend *dummy.Service, sink Sink) *Server {
	t.Helper()
	registry := ci.NewRegistry()
	require.NoError(t, registry.Register(backend))
	return NewServer(registry, "hook-secret", nil, sink)
}

func postResult(t *testing.T, server *Server, target, secret, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if secret != "" {
		req.Header.Set("Authorization", secret)
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleResultRejectsWrongSecret(t *testing.T) {
	var delivered bool
	server := testServer(t, dummy.New(), func(ctx context.Context, d Delivery) error {
		delivered = true
		return nil
	})

	rec := postResult(t, server, "/api/webhooks/dummy/results", "wrong", "{}")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, delivered)
}

func TestHandleResultUnknownBackend(t *testing.T) {
	server := testServer(t, dummy.New(), func(ctx context.Context, d Delivery) error { return nil })

	rec := postResult(t, server, "/api/webhooks/unknown/results", "hook-secret", "{}")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleResultDropsFirstBuild(t *testing.T) {
	backend := dummy.New()
	backend.ParseResultFn = func(payload []byte) (*result.NativeBuild, error) {
		return &result.NativeBuild{Reason: "First build for this plan"}, nil
	}
	var delivered bool
	server := testServer(t, backend, func(ctx context.Context, d Delivery) error {
		delivered = true
		return nil
	})

	rec := postResult(t, server, "/api/webhooks/dummy/results", "hook-secret", "{}")

	assert.Equal(t, http.StatusOK, rec.Code, "the drop is acknowledged so the backend does not retry")
	assert.False(t, delivered)
}

func TestHandleResultDeliversNormalizedBuild(t *testing.T) {
	backend := dummy.New()
	backend.ParseResultFn = func(payload []byte) (*result.NativeBuild, error) {
		return &result.NativeBuild{
			Reason:     "Code has changed",
			Successful: true,
			Jobs: []result.NativeJob{
				{Name: "default", Tests: []result.NativeTest{{Name: "testAdd", Successful: true}}},
			},
		}, nil
	}
	var got Delivery
	server := testServer(t, backend, func(ctx context.Context, d Delivery) error {
		got = d
		return nil
	})

	rec := postResult(t, server, "/api/webhooks/dummy/results", "hook-secret", "{}")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got.Build)
	assert.Equal(t, "dummy", got.Backend)
	assert.NotEmpty(t, got.ID)
	assert.True(t, got.Build.Successful)
	assert.Equal(t, 1, got.Build.TestCaseCount)
}

func TestHandleResultKeepsDeliveryID(t *testing.T) {
	backend := dummy.New()
	backend.ParseResultFn = func(payload []byte) (*result.NativeBuild, error) {
		return &result.NativeBuild{Reason: "Code has changed"}, nil
	}
	var got Delivery
	server := testServer(t, backend, func(ctx context.Context, d Delivery) error {
		got = d
		return nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/dummy/results", strings.NewReader("{}"))
	req.Header.Set("Authorization", "hook-secret")
	req.Header.Set(deliveryHeader, "delivery-123")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delivery-123", got.ID)
}

func TestHandleResultBadPayload(t *testing.T) {
	backend := dummy.New()
	backend.ParseResultFn = func(payload []byte) (*result.NativeBuild, error) {
		return nil, assert.AnError
	}
	server := testServer(t, backend, func(ctx context.Context, d Delivery) error { return nil })

	rec := postResult(t, server, "/api/webhooks/dummy/results", "hook-secret", "not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t, dummy.New(), func(ctx context.Context, d Delivery) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}
