package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kristinauko/BookStoreInventory/internal/config"
	pkgconfig "github.com/kristinauko/BookStoreInventory/pkg/config"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging"
	"github.com/kristinauko/BookStoreInventory/pkg/messaging/events"
	"github.com/kristinauko/BookStoreInventory/pkg/web"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const productsURL = "/api/v1/products"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ProductsChangedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(events.ProductsChangedEvent))
	return nil
}

func (p *recordingPublisher) published() []events.ProductsChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ProductsChangedEvent(nil), p.events...)
}

func testConfig(dir string) *config.Config {
	var cfg config.Config
	cfg.HTTPServer.MaxHeaderBytes = 1 << 20
	cfg.Database.Driver = pkgconfig.DriverSQLite
	cfg.Database.URL = "file:" + filepath.Join(dir, "inventory.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	cfg.Database.Timeout = 5 * time.Second
	cfg.GRPC.HealthInterval = time.Second
	cfg.NATS.Timeout = time.Second
	cfg.CircuitBreaker.ConsecutiveFailures = 3
	cfg.CircuitBreaker.ErrorRatePercent = 50
	cfg.CircuitBreaker.OpenTimeout = time.Second
	cfg.CircuitBreaker.HalfOpenRequests = 1
	return &cfg
}

// InventoryE2ESuite runs the HTTP surface against a real SQLite file.
type InventoryE2ESuite struct {
	suite.Suite
	db        *Database
	deps      *Dependencies
	publisher *recordingPublisher
	server    *httptest.Server
	cfg       *config.Config
}

func TestInventoryE2ESuite(t *testing.T) {
	suite.Run(t, new(InventoryE2ESuite))
}

func (s *InventoryE2ESuite) SetupSuite() {
	ctx := context.Background()
	s.cfg = testConfig(s.T().TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.db, err = OpenDatabase(ctx, s.cfg.Database)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Migrate(ctx))

	s.publisher = &recordingPublisher{}
	s.deps, err = SetupDependencies(s.db, s.publisher, s.cfg, logger)
	s.Require().NoError(err)
	s.server = httptest.NewServer(SetupHttpHandler(s.deps))
}

func (s *InventoryE2ESuite) TearDownSuite() {
	s.server.Close()
	s.deps.Sink.Wait()
	s.Require().NoError(s.db.Close())
}

func (s *InventoryE2ESuite) SetupTest() {
	_, err := s.db.DB.Exec("DELETE FROM products")
	s.Require().NoError(err)
	s.deps.Sink.Wait()
	s.publisher.mu.Lock()
	s.publisher.events = nil
	s.publisher.mu.Unlock()
}

func (s *InventoryE2ESuite) do(method, path string, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, data
}

func (s *InventoryE2ESuite) create(body map[string]any) int64 {
	resp, data := s.do(http.MethodPost, productsURL, body)
	s.Require().Equal(http.StatusCreated, resp.StatusCode, string(data))
	var created struct {
		ID int64 `json:"id"`
	}
	s.Require().NoError(json.Unmarshal(data, &created))
	return created.ID
}

func climbs() map[string]any {
	return map[string]any{
		"name":           "Greatest climbs",
		"price":          10,
		"quantity":       100,
		"supplier_name":  "Frances Lincoln",
		"supplier_phone": "4154547890",
	}
}

func (s *InventoryE2ESuite) TestProductLifecycle() {
	// given
	id := s.create(climbs())

	// when
	patchResp, _ := s.do(http.MethodPatch, productsURL+"/"+itoa(id), map[string]any{"quantity": 1})
	saleResp, _ := s.do(http.MethodPost, productsURL+"/"+itoa(id)+"/sale", nil)
	secondSale, secondBody := s.do(http.MethodPost, productsURL+"/"+itoa(id)+"/sale", nil)
	getResp, getBody := s.do(http.MethodGet, productsURL+"/"+itoa(id)+"?columns=name,quantity", nil)

	// then
	s.Equal(http.StatusOK, patchResp.StatusCode)
	s.Equal(http.StatusOK, saleResp.StatusCode)
	s.Equal(http.StatusBadRequest, secondSale.StatusCode)
	s.JSONEq(`{"validation_errors":{"quantity":"out of stock"}}`, string(secondBody))
	s.Equal(http.StatusOK, getResp.StatusCode)
	s.JSONEq(`{"name":"Greatest climbs","quantity":0}`, string(getBody))

	// when
	delResp, _ := s.do(http.MethodDelete, productsURL+"/"+itoa(id), nil)
	missing, _ := s.do(http.MethodGet, productsURL+"/"+itoa(id), nil)

	// then
	s.Equal(http.StatusNoContent, delResp.StatusCode)
	s.Equal(http.StatusNotFound, missing.StatusCode)

	s.deps.Sink.Wait()
	ops := make([]string, 0)
	for _, e := range s.publisher.published() {
		ops = append(ops, e.Op)
		s.Equal("/products/"+itoa(id), e.Path)
	}
	s.Equal([]string{"insert", "update", "update", "delete"}, ops)
}

func (s *InventoryE2ESuite) TestAdjustBeyondMaxKeepsListReadable() {
	// given
	body := climbs()
	body["quantity"] = 2147483647
	id := s.create(body)

	// when
	adjust, adjustBody := s.do(http.MethodPost, productsURL+"/"+itoa(id)+"/adjust?delta=1", nil)
	list, listBody := s.do(http.MethodGet, productsURL+"?columns=quantity", nil)

	// then
	s.Equal(http.StatusBadRequest, adjust.StatusCode)
	s.JSONEq(`{"validation_errors":{"quantity":"out of range"}}`, string(adjustBody))
	s.Equal(http.StatusOK, list.StatusCode)
	s.JSONEq(`[{"quantity":2147483647}]`, string(listBody))
}

func (s *InventoryE2ESuite) TestCreateValidation() {
	testCases := []struct {
		name     string
		mutate   func(map[string]any)
		expected string
	}{
		{"empty name", func(b map[string]any) { b["name"] = "" }, `{"validation_errors":{"name":"must not be empty"}}`},
		{"missing supplier", func(b map[string]any) { delete(b, "supplier_name") }, `{"validation_errors":{"supplier_name":"must not be empty"}}`},
		{"negative price", func(b map[string]any) { b["price"] = -1 }, `{"validation_errors":{"price":"must not be negative"}}`},
		{"negative quantity", func(b map[string]any) { b["quantity"] = -5 }, `{"validation_errors":{"quantity":"must not be negative"}}`},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			// given
			body := climbs()
			tc.mutate(body)

			// when
			resp, data := s.do(http.MethodPost, productsURL, body)

			// then
			s.Equal(http.StatusBadRequest, resp.StatusCode)
			s.JSONEq(tc.expected, string(data))
		})
	}

	// nothing was written and nobody was told
	_, list := s.do(http.MethodGet, productsURL, nil)
	s.JSONEq(`[]`, string(list))
	s.deps.Sink.Wait()
	s.Empty(s.publisher.published())
}

func (s *InventoryE2ESuite) TestListQuery() {
	// given
	s.create(map[string]any{"name": "B", "price": 5, "supplier_name": "Cicerone", "supplier_phone": "1"})
	s.create(map[string]any{"name": "A", "price": 7, "supplier_name": "Cicerone", "supplier_phone": "2"})
	s.create(map[string]any{"name": "C", "price": 1, "supplier_name": "Other", "supplier_phone": "3"})

	// when
	resp, data := s.do(http.MethodGet, productsURL+"?columns=name&supplier=Cicerone&sort=price%20DESC", nil)

	// then
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`[{"name":"A"},{"name":"B"}]`, string(data))
	s.Equal("vnd.android.cursor.dir/com.example.android.bookstoreinventory/products", resp.Header.Get("X-Resource-Type"))
	s.NotEmpty(resp.Header.Get(web.HeaderRequestID))
}

func (s *InventoryE2ESuite) TestDeleteAll() {
	// given
	s.create(climbs())
	s.create(climbs())

	// when
	resp, data := s.do(http.MethodDelete, productsURL, nil)
	again, againData := s.do(http.MethodDelete, productsURL, nil)

	// then
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"rows_affected":2}`, string(data))
	s.Equal(http.StatusOK, again.StatusCode)
	s.JSONEq(`{"rows_affected":0}`, string(againData))

	s.deps.Sink.Wait()
	published := s.publisher.published()
	s.Require().Len(published, 3)
	s.Equal("delete_all", published[2].Op)
	s.Equal("/products", published[2].Path)
}

func (s *InventoryE2ESuite) TestGrpcHealth() {
	// given
	lis := bufconn.Listen(1024 * 1024)
	srv := SetupGrpcServer(s.deps, true)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)
	defer func() { _ = conn.Close() }()

	// when
	s.deps.Health.Check(context.Background())
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})

	// then
	s.Require().NoError(err)
	s.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestSetupDependencies_WithoutPublisher(t *testing.T) {
	// given
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	db, err := OpenDatabase(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	// when
	deps, err := SetupDependencies(db, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// then
	require.NoError(t, err)
	require.Nil(t, deps.Sink)
	require.Zero(t, deps.Changes.Len())
}

func TestOpenDatabase_UnknownDriver(t *testing.T) {
	_, err := OpenDatabase(context.Background(), pkgconfig.DatabaseConfig{Driver: "mysql", URL: "x", Timeout: time.Second})
	require.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
