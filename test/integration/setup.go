package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"isawan/internal/config"
	"isawan/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, a connection pool and the
// orders schema.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.Nop()
	pool, err := database.NewPool(ctx, config.DatabaseConfig{
		URL:             connStr,
		MaxConnections:  10,
		MinConnections:  2,
		MaxConnLifetime: 300,
	}, logger)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := database.Migrate(ctx, pool, logger); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// CleanupDB removes all orders.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), "DELETE FROM orders"); err != nil {
		t.Logf("failed to clean orders: %v", err)
	}
}

// fakeSession is a checkout session held by FakePayMongo.
type fakeSession struct {
	id      string
	orderID string
	amount  int64
	paid    bool
}

// FakePayMongo serves the subset of the PayMongo checkout API the client uses.
type FakePayMongo struct {
	Server *httptest.Server

	mu       sync.Mutex
	sessions map[string]*fakeSession
	seq      int
	failNext bool
}

// NewFakePayMongo starts a fake processor. Its base URL is Server.URL+"/v1".
func NewFakePayMongo(t *testing.T) *FakePayMongo {
	t.Helper()

	f := &FakePayMongo{sessions: make(map[string]*fakeSession)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL returns the API root to configure the client with.
func (f *FakePayMongo) BaseURL() string {
	return f.Server.URL + "/v1"
}

// Pay marks a session as paid.
func (f *FakePayMongo) Pay(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.paid = true
	}
}

// FailNextCheckout makes the next session creation return 502.
func (f *FakePayMongo) FailNextCheckout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

// SessionCount returns the number of sessions created.
func (f *FakePayMongo) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *FakePayMongo) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout_sessions":
		if f.failNext {
			f.failNext = false
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"errors":[{"code":"service_unavailable","detail":"try again later"}]}`))
			return
		}

		var req struct {
			Data struct {
				Attributes struct {
					LineItems []struct {
						Amount   int64 `json:"amount"`
						Quantity int64 `json:"quantity"`
					} `json:"line_items"`
					Metadata map[string]string `json:"metadata"`
				} `json:"attributes"`
			} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.seq++
		s := &fakeSession{
			id:      fmt.Sprintf("cs_test_%d", f.seq),
			orderID: req.Data.Attributes.Metadata["order_id"],
		}
		for _, li := range req.Data.Attributes.LineItems {
			s.amount += li.Amount * li.Quantity
		}
		f.sessions[s.id] = s
		_, _ = w.Write(f.render(s))

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/checkout_sessions/"):
		s, ok := f.sessions[strings.TrimPrefix(r.URL.Path, "/v1/checkout_sessions/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[{"code":"resource_not_found","detail":"No such checkout_session"}]}`))
			return
		}
		_, _ = w.Write(f.render(s))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakePayMongo) render(s *fakeSession) []byte {
	status := "unpaid"
	payments := []any{}
	if s.paid {
		status = "paid"
		payments = append(payments, map[string]any{
			"id":   "pay_" + s.id,
			"type": "payment",
			"attributes": map[string]any{
				"amount":   s.amount,
				"status":   "paid",
				"metadata": map[string]string{"order_id": s.orderID},
			},
		})
	}

	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"id":   s.id,
			"type": "checkout_session",
			"attributes": map[string]any{
				"checkout_url":     f.Server.URL + "/checkout/" + s.id,
				"reference_number": s.orderID,
				"status":           "active",
				"payment_status":   status,
				"payments":         payments,
				"metadata":         map[string]string{"order_id": s.orderID},
			},
		},
	})
	return body
}
