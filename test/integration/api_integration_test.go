package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"isawan/internal/config"
	"isawan/internal/handler"
	"isawan/internal/metrics"
	"isawan/internal/model"
	"isawan/internal/payment"
	"isawan/internal/repository"
	"isawan/internal/router"
	"isawan/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey        = "test-api-key"
	testWebhookSecret = "whsk_test_secret"
)

type testServer struct {
	handler    http.Handler
	reconciler service.ReconciliationService
	repo       repository.OrderRepository
	paymongo   *FakePayMongo
}

func setupTestServer(t *testing.T, testDB *TestDB) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	fake := NewFakePayMongo(t)
	m := metrics.New()

	orderRepo := repository.NewOrderRepository(testDB.Pool, logger)
	processor := payment.NewClient(config.PayMongoConfig{
		SecretKey:      "sk_test_123",
		BaseURL:        fake.BaseURL(),
		PaymentMethods: []string{"gcash", "card"},
		Timeout:        5 * time.Second,
	}, logger)

	orderService := service.NewOrderService(orderRepo, processor, config.CheckoutConfig{
		PublicBaseURL: "https://isawan.example",
		SuccessURL:    "https://isawan.example/success.html",
		CancelURL:     "https://isawan.example/success.html",
	}, m, logger)
	reconciler := service.NewReconciliationService(orderRepo, processor, nil, service.ReconcileOptions{
		WebhookSecret:      testWebhookSecret,
		SignatureTolerance: 5 * time.Minute,
	}, m, logger)

	h := router.New(router.Handlers{
		Order:   handler.NewOrderHandler(orderService, logger),
		Payment: handler.NewPaymentHandler(reconciler, logger),
		Health:  handler.NewHealthHandler(testDB.Pool, logger),
	}, router.Options{
		APIKey:  testAPIKey,
		Metrics: m,
	}, logger)

	return &testServer{handler: h, reconciler: reconciler, repo: orderRepo, paymongo: fake}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) placeOrder(t *testing.T, dish any) model.PlaceOrderResponse {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"dish":     dish,
		"location": "Gate 2",
		"contact":  "09171234567",
		"date":     "2026-10-16",
		"time":     "18:30",
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/order", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.PlaceOrderResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func (s *testServer) sendWebhook(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	return s.do(t, http.MethodPost, "/webhook", body, map[string]string{
		payment.SignatureHeader: payment.SignatureHeaderValue(testWebhookSecret, time.Now(), body),
	})
}

func paidEvent(orderID, sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"data": {
			"id": "evt_%s",
			"type": "event",
			"attributes": {
				"type": "checkout_session.payment.paid",
				"data": {
					"id": %q,
					"type": "checkout_session",
					"attributes": {
						"metadata": {"order_id": %q},
						"payments": [{"id": "pay_1", "type": "payment", "attributes": {"status": "paid"}}]
					}
				}
			}
		}
	}`, sessionID, sessionID, orderID))
}

func TestPlaceOrder_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)
	ctx := context.Background()

	t.Run("POST /order creates a pending order with a checkout session", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		resp := server.placeOrder(t, []string{"Isaw - 15", "BBQ - 20", "Isaw - 15"})

		assert.Contains(t, resp.URL, "/checkout/"+resp.SessionID)
		assert.Equal(t, int64(5000), resp.TotalAmount)
		assert.Equal(t, "PHP", resp.Currency)

		order, err := server.repo.GetByID(ctx, resp.OrderID)
		require.NoError(t, err)
		assert.Equal(t, "Isaw x2, BBQ x1", order.Dish)
		assert.Equal(t, int64(5000), order.TotalAmount)
		assert.Equal(t, model.PaymentStatusUnpaid, order.PaymentStatus)
		assert.Equal(t, model.OrderStatusPending, order.Status)
		require.NotNil(t, order.CheckoutSessionID)
		assert.Equal(t, resp.SessionID, *order.CheckoutSessionID)
	})

	t.Run("comma separated dish string is accepted", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		resp := server.placeOrder(t, "Kwek-kwek - 25, Balut, Fishball - 5")

		assert.Equal(t, int64(3000), resp.TotalAmount)
	})

	t.Run("no valid dishes is rejected before any side effect", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		sessionsBefore := server.paymongo.SessionCount()

		w := server.do(t, http.MethodPost, "/order", []byte(`{"dish":["Isaw","BBQ - free"]}`), nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, sessionsBefore, server.paymongo.SessionCount())

		var count int
		require.NoError(t, testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&count))
		assert.Zero(t, count)
	})

	t.Run("checkout failure leaves no pending order behind", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		server.paymongo.FailNextCheckout()

		w := server.do(t, http.MethodPost, "/order", []byte(`{"dish":["Isaw - 15"]}`), nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var resp model.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, model.ErrCodeCheckoutFailed, resp.Code)

		var count int
		require.NoError(t, testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&count))
		assert.Zero(t, count)
	})

	t.Run("GET /orders/{id} requires the API key", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		resp := server.placeOrder(t, []string{"Isaw - 15"})

		w := server.do(t, http.MethodGet, "/orders/"+resp.OrderID.String(), nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = server.do(t, http.MethodGet, "/orders/"+resp.OrderID.String(), nil, map[string]string{"X-API-Key": testAPIKey})
		require.Equal(t, http.StatusOK, w.Code)

		var order model.Order
		require.NoError(t, json.NewDecoder(w.Body).Decode(&order))
		assert.Equal(t, resp.OrderID, order.ID)

		w = server.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil, map[string]string{"X-API-Key": testAPIKey})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("GET /health pings the database", func(t *testing.T) {
		w := server.do(t, http.MethodGet, "/health", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	})
}

func TestPaymentReconciliation_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)
	ctx := context.Background()

	t.Run("webhook marks the order paid exactly once", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		resp := server.placeOrder(t, []string{"Isaw - 15"})
		event := paidEvent(resp.OrderID.String(), resp.SessionID)

		w := server.sendWebhook(t, event)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"received":true,"applied":true,"order_id":%q}`, resp.OrderID), w.Body.String())

		order, err := server.repo.GetByID(ctx, resp.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
		assert.Equal(t, model.OrderStatusConfirmed, order.Status)
		require.NotNil(t, order.PaidAt)
		paidAt := *order.PaidAt

		w = server.sendWebhook(t, event)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"received":true,"applied":false,"order_id":%q}`, resp.OrderID), w.Body.String())

		order, err = server.repo.GetByID(ctx, resp.OrderID)
		require.NoError(t, err)
		assert.True(t, paidAt.Equal(*order.PaidAt))
	})

	t.Run("bare payment webhook marks the order paid", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		resp := server.placeOrder(t, []string{"Isaw - 15", "BBQ - 20"})
		event := []byte(fmt.Sprintf(`{"data":{"attributes":{"payment":{"status":"paid","metadata":{"order_id":%q}}}}}`, resp.OrderID))

		w := server.sendWebhook(t, event)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"received":true,"applied":true,"order_id":%q}`, resp.OrderID), w.Body.String())

		order, err := server.repo.GetByID(ctx, resp.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
		assert.NotNil(t, order.PaidAt)
	})

	// Order ids are UUIDs, so a non-UUID reference such as "42" can never
	// name a stored order. It is acknowledged and left alone.
	t.Run("webhook for an unknown order is acknowledged", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		w := server.sendWebhook(t, []byte(`{"data":{"attributes":{"payment":{"status":"paid","metadata":{"order_id":"42"}}}}}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true,"applied":false,"order_id":"42"}`, w.Body.String())
	})

	t.Run("webhook with a bad signature is rejected", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		resp := server.placeOrder(t, []string{"Isaw - 15"})
		event := paidEvent(resp.OrderID.String(), resp.SessionID)

		w := server.do(t, http.MethodPost, "/webhook", event, map[string]string{
			payment.SignatureHeader: payment.SignatureHeaderValue("not-the-secret", time.Now(), event),
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		order, err := server.repo.GetByID(ctx, resp.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusUnpaid, order.PaymentStatus)
	})

	t.Run("malformed webhook returns 500", func(t *testing.T) {
		w := server.sendWebhook(t, []byte(`{"data":`))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("verify-payment reflects the processor and applies the transition", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		resp := server.placeOrder(t, []string{"BBQ - 20"})

		w := server.do(t, http.MethodGet, "/verify-payment?sessionId="+resp.SessionID, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"status":"unpaid","order_id":%q}`, resp.OrderID), w.Body.String())

		server.paymongo.Pay(resp.SessionID)

		w = server.do(t, http.MethodGet, "/verify-payment?sessionId="+resp.SessionID, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"status":"paid","order_id":%q}`, resp.OrderID), w.Body.String())

		order, err := server.repo.GetByID(ctx, resp.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)
	})

	t.Run("verify-payment error paths", func(t *testing.T) {
		w := server.do(t, http.MethodGet, "/verify-payment", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = server.do(t, http.MethodGet, "/verify-payment?sessionId=cs_missing", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("webhook and verification racing apply one transition", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		resp := server.placeOrder(t, []string{"Isaw - 15"})
		server.paymongo.Pay(resp.SessionID)
		event := paidEvent(resp.OrderID.String(), resp.SessionID)

		var wg sync.WaitGroup
		codes := make([]int, 8)
		for i := range codes {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					codes[i] = server.sendWebhook(t, event).Code
				} else {
					codes[i] = server.do(t, http.MethodGet, "/verify-payment?sessionId="+resp.SessionID, nil, nil).Code
				}
			}(i)
		}
		wg.Wait()

		for _, code := range codes {
			assert.Equal(t, http.StatusOK, code)
		}

		var transitions int
		require.NoError(t, testDB.Pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM orders WHERE id = $1 AND payment_status = 'paid' AND paid_at IS NOT NULL",
			resp.OrderID).Scan(&transitions))
		assert.Equal(t, 1, transitions)
	})

	t.Run("sweep settles orders whose webhook never arrived", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		paid := server.placeOrder(t, []string{"Isaw - 15"})
		unpaid := server.placeOrder(t, []string{"BBQ - 20"})
		server.paymongo.Pay(paid.SessionID)

		n, err := server.reconciler.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		order, err := server.repo.GetByID(ctx, paid.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPaid, order.PaymentStatus)

		order, err = server.repo.GetByID(ctx, unpaid.OrderID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusUnpaid, order.PaymentStatus)

		n, err = server.reconciler.Sweep(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
