package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/raterudder/luminus/pkg/luminus"
	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockLuminus(t *testing.T) *luminus.Client {
	t.Helper()
	c, err := luminus.New(luminus.Config{Mock: true})
	require.NoError(t, err)
	return c
}

func TestHealthz(t *testing.T) {
	s := newTestServer(new(mockClient), storage.NewMemory())
	rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", readAll(t, rr.Body))

	assert.Equal(t, "test", rr.Header().Get("Server"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestRequestID(t *testing.T) {
	s := newTestServer(new(mockClient), storage.NewMemory())

	t.Run("generated", func(t *testing.T) {
		rr := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		_, err := uuid.Parse(rr.Header().Get(requestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("reused", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, id)
		rr := serve(s, req)
		assert.Equal(t, id, rr.Header().Get(requestIDHeader))
	})

	t.Run("invalid replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, "not-a-uuid")
		rr := serve(s, req)
		assert.NotEqual(t, "not-a-uuid", rr.Header().Get(requestIDHeader))
	})
}

func TestStatus(t *testing.T) {
	c := new(mockClient)
	c.On("Authenticated").Return(true)
	s := newTestServer(c, storage.NewMemory())

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp statusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Authenticated)
	assert.NotEmpty(t, resp.Version)
	c.AssertExpectations(t)
}

func TestMeters(t *testing.T) {
	s := newTestServer(newMockLuminus(t), storage.NewMemory())

	t.Run("list", func(t *testing.T) {
		rr := serve(s, httptest.NewRequest(http.MethodGet, "/api/meters", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var meters []types.Meter
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&meters))
		require.Len(t, meters, 2)
		assert.Equal(t, luminus.MockEANElectricity, meters[0].EAN)
		assert.Equal(t, types.EnergyKindElectricity, meters[0].EnergyType)
		assert.Equal(t, luminus.MockEANGas, meters[1].EAN)
	})

	t.Run("pricing", func(t *testing.T) {
		rr := serve(s, httptest.NewRequest(http.MethodGet, "/api/meters/"+luminus.MockEANElectricity+"/pricing", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var doc types.PriceDocument
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&doc))
		assert.Equal(t, "Luminus Elektriciteit", doc.ProductName)
		assert.Equal(t, types.TariffProfileDual, doc.ActiveMeterType)
		assert.Equal(t, 10.93, doc.ActivePrices()[types.ComponentDualDay].Rate)
	})

	t.Run("unknown meter", func(t *testing.T) {
		rr := serve(s, httptest.NewRequest(http.MethodGet, "/api/meters/999/pricing", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.JSONEq(t, `{"error": "meter not found"}`, readAll(t, rr.Body))
	})

	t.Run("empty list", func(t *testing.T) {
		c := new(mockClient)
		c.On("ListMeters", mock.Anything).Return(nil, nil)
		rr := serve(newTestServer(c, storage.NewMemory()), httptest.NewRequest(http.MethodGet, "/api/meters", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, readAll(t, rr.Body))
	})

	t.Run("method not allowed", func(t *testing.T) {
		rr := serve(s, httptest.NewRequest(http.MethodPost, "/api/meters", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", &luminus.NotFoundError{EAN: "1"}, http.StatusNotFound},
		{"auth", &luminus.AuthError{Step: "password", StatusCode: http.StatusBadRequest}, http.StatusBadGateway},
		{"timeout", &luminus.ConnectionError{URL: "https://example.com", Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"status", &luminus.ConnectionError{URL: "https://example.com", StatusCode: http.StatusInternalServerError}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(mockClient)
			c.On("GetMeterPricing", mock.Anything, "1").Return(types.PriceDocument{}, tt.err)
			s := newTestServer(c, storage.NewMemory())

			rr := serve(s, httptest.NewRequest(http.MethodGet, "/api/meters/1/pricing", nil))
			assert.Equal(t, tt.code, rr.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
			c.AssertExpectations(t)
		})
	}
}

func TestSplitEmails(t *testing.T) {
	assert.Nil(t, splitEmails(""))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, splitEmails(" a@example.com,,b@example.com "))
}

func TestLogoutOnShutdown(t *testing.T) {
	c := new(mockClient)
	c.On("Logout", mock.Anything).Return(errors.New("ignored")).Once()
	s := newTestServer(c, storage.NewMemory())
	s.listenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
	c.AssertExpectations(t)
}
