package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raterudder/luminus/pkg/log"
	"github.com/raterudder/luminus/pkg/storage"
	"github.com/raterudder/luminus/pkg/types"
	"github.com/stretchr/testify/mock"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

type mockClient struct {
	mock.Mock
}

var _ PricingClient = (*mockClient)(nil)

func (m *mockClient) ListMeters(ctx context.Context) ([]types.Meter, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Meter), args.Error(1)
}

func (m *mockClient) GetMeterPricing(ctx context.Context, ean string) (types.PriceDocument, error) {
	args := m.Called(ctx, ean)
	return args.Get(0).(types.PriceDocument), args.Error(1)
}

func (m *mockClient) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockClient) Authenticated() bool {
	args := m.Called()
	return args.Bool(0)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(c PricingClient, db storage.Database) *Server {
	return &Server{
		client:     c,
		storage:    db,
		serverName: "test",
		bypassAuth: true,
		now:        func() time.Time { return testNow },
	}
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rr, req)
	return rr
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
