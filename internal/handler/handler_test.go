package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/greencart-api/internal/domain/auth"
	"github.com/xenking/greencart-api/internal/domain/coupon"
	"github.com/xenking/greencart-api/internal/domain/order"
	"github.com/xenking/greencart-api/internal/domain/product"
	"github.com/xenking/greencart-api/internal/domain/user"
	"github.com/xenking/greencart-api/internal/payment"
)

var (
	jwtSecret     = []byte("jwt-test-secret")
	apiKeyPepper  = []byte("pepper-test")
	webhookSecret = []byte("whsec_test")
)

// --- In-memory fakes ---

type fakeProducts struct {
	byID map[string]product.Product
}

func (f *fakeProducts) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range f.byID {
		if !p.Deleted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok || p.Deleted {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok && !p.Deleted {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeCoupons struct {
	mu    sync.Mutex
	rules map[string]*coupon.Rule
}

func (f *fakeCoupons) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrInvalidOrExpired
	}
	cp := *r
	return &cp, nil
}

func (f *fakeCoupons) Redeem(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[strings.ToUpper(code)]
	if !ok {
		return coupon.ErrInvalidOrExpired
	}
	if r.UsageLimit > 0 && r.UsedCount >= r.UsageLimit {
		return coupon.ErrExhausted
	}
	r.UsedCount++
	return nil
}

func (f *fakeCoupons) Create(_ context.Context, rule *coupon.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rule
	cp.Code = strings.ToUpper(cp.Code)
	f.rules[cp.Code] = &cp
	return nil
}

func (f *fakeCoupons) List(_ context.Context) ([]coupon.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []coupon.Rule
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out, nil
}

type fakeOrders struct {
	mu   sync.Mutex
	byID map[string]*order.Order
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.byID[o.ID] = &cp
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) SetSessionID(_ context.Context, id, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.CheckoutSessionID = sessionID
	return nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok || o.IsPaid {
		return false, nil
	}
	o.IsPaid = true
	return true, nil
}

func (f *fakeOrders) DeleteUnpaid(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok || o.IsPaid {
		return false, nil
	}
	delete(f.byID, id)
	return true, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []order.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListAll(_ context.Context) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []order.Order
	for _, o := range f.byID {
		out = append(out, *o)
	}
	return out, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	carts map[string]user.Cart
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	return &user.User{ID: id}, nil
}

func (f *fakeUsers) UpdateCart(_ context.Context, id string, cart user.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[id] = cart
	return nil
}

func (f *fakeUsers) ClearCart(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, id)
	return nil
}

type fakeProcessor struct {
	session *payment.Session
	err     error
}

func (f *fakeProcessor) CreateSession(_ context.Context, _ payment.CreateSessionParams) (*payment.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeProcessor) GetSession(_ context.Context, _ string) (*payment.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeAPIKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (f *fakeAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := f.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

// --- Test fixture ---

type fixture struct {
	handler   http.Handler
	products  *fakeProducts
	coupons   *fakeCoupons
	orders    *fakeOrders
	users     *fakeUsers
	processor *fakeProcessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &fakeProducts{byID: map[string]product.Product{
		"p1": {
			ID:         "p1",
			Name:       "Potato",
			Category:   "Vegetables",
			Price:      decimal.RequireFromString("2.00"),
			OfferPrice: decimal.RequireFromString("1.80"),
			InStock:    true,
			Image:      "potato.png",
		},
		"p2": {
			ID:         "p2",
			Name:       "Carrot",
			Category:   "Vegetables",
			Price:      decimal.RequireFromString("3.00"),
			OfferPrice: decimal.RequireFromString("3.00"),
			InStock:    true,
		},
	}}
	coupons := &fakeCoupons{rules: map[string]*coupon.Rule{
		"SAVE10": {
			Code:       "SAVE10",
			Discount:   decimal.NewFromInt(10),
			ExpiryDate: time.Now().AddDate(0, 1, 0),
			IsActive:   true,
			UsageLimit: 5,
		},
	}}
	orders := &fakeOrders{byID: make(map[string]*order.Order)}
	users := &fakeUsers{carts: make(map[string]user.Cart)}
	processor := &fakeProcessor{
		session: &payment.Session{ID: "cs_1", URL: "https://pay.test/cs_1"},
	}

	validator := coupon.NewRepoValidator(coupons)
	svc := order.NewService(
		order.ServiceConfig{SuccessURL: "https://shop.test/success", CancelURL: "https://shop.test/cart"},
		products, coupons, validator, orders, users, processor, nil,
	)

	h := New(
		Config{
			JWTSecret:     jwtSecret,
			APIKeyPepper:  apiKeyPepper,
			WebhookSecret: webhookSecret,
			ImageBaseURL:  "https://cdn.test/images",
		},
		products, coupons, validator, svc, users,
		&fakeAPIKeys{byHash: map[string]*auth.APIKeyInfo{
			hashKey("seller-key"): {
				ID:      "k1",
				KeyHash: hashKey("seller-key"),
				Name:    "test seller",
				Scopes:  []string{"seller"},
			},
			hashKey("limited-key"): {
				ID:      "k2",
				KeyHash: hashKey("limited-key"),
				Name:    "no scopes",
				Scopes:  nil,
			},
		}},
	)

	return &fixture{
		handler:   h.Routes(),
		products:  products,
		coupons:   coupons,
		orders:    orders,
		users:     users,
		processor: processor,
	}
}

func hashKey(key string) string {
	mac := hmac.New(sha256.New, apiKeyPepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwtSecret)
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if decorate != nil {
		decorate(req)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func asUser(t *testing.T, userID string) func(*http.Request) {
	token := userToken(t, userID)
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func asSeller(key string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("api_key", key)
	}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// --- Catalog ---

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])

	products := body["products"].([]any)
	assert.Len(t, products, 2)
	for _, raw := range products {
		p := raw.(map[string]any)
		if p["id"] == "p1" {
			assert.Equal(t, "https://cdn.test/images/potato.png", p["image"])
			assert.Equal(t, 1.8, p["offerPrice"])
		}
	}
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products/p1", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])

	p := body["product"].(map[string]any)
	assert.Equal(t, "Potato", p["name"])
	assert.Equal(t, "https://cdn.test/images/potato.png", p["image"])
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/products/ghost", nil, nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
}

// --- Auth ---

func TestRequireUser_MissingToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_BadToken(t *testing.T) {
	f := newFixture(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/orders/user", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signed)
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSeller_MissingKey(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders/seller", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSeller_UnknownKey(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders/seller", nil, asSeller("not-a-key"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSeller_MissingScope(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders/seller", nil, asSeller("limited-key"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireSeller_OK(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/orders/seller", nil, asSeller("seller-key"))
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Checkout ---

func TestPlaceOrderCOD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders/cod", placeOrderRequest{
		Items: []orderItemRequest{
			{Product: "p1", Quantity: 5},
			{Product: "p2", Quantity: 2},
		},
		Address: "addr-1",
	}, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])

	o := body["order"].(map[string]any)
	assert.Equal(t, 15.0, o["amount"])
	assert.Equal(t, "COD", o["paymentType"])
	assert.Equal(t, false, o["isPaid"])
	assert.Equal(t, "user-1", o["userId"])
}

func TestPlaceOrderCOD_WithCoupon(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders/cod", placeOrderRequest{
		Items:      []orderItemRequest{{Product: "p2", Quantity: 10}},
		Address:    "addr-1",
		CouponCode: "SAVE10",
		Discount:   99.0, // stale client preview, ignored
	}, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	o := decodeBody(t, w)["order"].(map[string]any)
	assert.Equal(t, 27.0, o["amount"], "30 minus the server-computed discount")
	assert.Equal(t, 3.0, o["discount"])
	assert.Equal(t, 1, f.coupons.rules["SAVE10"].UsedCount)
}

func TestPlaceOrderCOD_BadBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/cod", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+userToken(t, "user-1"))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrderCOD_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders/cod", placeOrderRequest{
		Items:   []orderItemRequest{{Product: "ghost", Quantity: 1}},
		Address: "addr-1",
	}, asUser(t, "user-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPlaceOrderCOD_NoAddress(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders/cod", placeOrderRequest{
		Items: []orderItemRequest{{Product: "p1", Quantity: 1}},
	}, asUser(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrderOnline(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/orders/stripe", placeOrderRequest{
		Items:   []orderItemRequest{{Product: "p1", Quantity: 1}},
		Address: "addr-1",
	}, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "https://pay.test/cs_1", body["url"])
}

func TestPlaceOrderOnline_ProcessorDown(t *testing.T) {
	f := newFixture(t)
	f.processor.err = payment.ErrProcessor

	w := f.do(t, http.MethodPost, "/api/orders/stripe", placeOrderRequest{
		Items:   []orderItemRequest{{Product: "p1", Quantity: 1}},
		Address: "addr-1",
	}, asUser(t, "user-1"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestListUserOrders_OnlyOwn(t *testing.T) {
	f := newFixture(t)

	for _, u := range []string{"user-1", "user-1", "user-2"} {
		w := f.do(t, http.MethodPost, "/api/orders/cod", placeOrderRequest{
			Items:   []orderItemRequest{{Product: "p1", Quantity: 1}},
			Address: "addr-1",
		}, asUser(t, u))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/orders/user", nil, asUser(t, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["orders"].([]any), 2)

	w = f.do(t, http.MethodGet, "/api/orders/seller", nil, asSeller("seller-key"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["orders"].([]any), 3)
}

// --- Lifecycle ---

func placeCOD(t *testing.T, f *fixture, userID string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/orders/cod", placeOrderRequest{
		Items:   []orderItemRequest{{Product: "p1", Quantity: 1}},
		Address: "addr-1",
	}, asUser(t, userID))
	require.Equal(t, http.StatusOK, w.Code)
	return decodeBody(t, w)["order"].(map[string]any)["id"].(string)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	id := placeCOD(t, f, "user-1")

	w := f.do(t, http.MethodPut, "/api/orders/"+id+"/status",
		updateStatusRequest{Status: "Shipped"}, asSeller("seller-key"))

	require.Equal(t, http.StatusOK, w.Code)
	o := decodeBody(t, w)["order"].(map[string]any)
	assert.Equal(t, "Shipped", o["status"])
}

func TestUpdateOrderStatus_Invalid(t *testing.T) {
	f := newFixture(t)
	id := placeCOD(t, f, "user-1")

	w := f.do(t, http.MethodPut, "/api/orders/"+id+"/status",
		updateStatusRequest{Status: "Lost"}, asSeller("seller-key"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmDelivery_NotOwner(t *testing.T) {
	f := newFixture(t)
	id := placeCOD(t, f, "user-1")

	w := f.do(t, http.MethodPut, "/api/orders/"+id+"/confirm-delivery", nil, asUser(t, "user-2"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConfirmDelivery(t *testing.T) {
	f := newFixture(t)
	id := placeCOD(t, f, "user-1")

	w := f.do(t, http.MethodPut, "/api/orders/"+id+"/confirm-delivery", nil, asUser(t, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	o := decodeBody(t, w)["order"].(map[string]any)
	assert.Equal(t, "Delivered", o["status"])
}

// --- Coupons ---

func TestApplyCoupon(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/coupon/apply",
		applyCouponRequest{Code: "SAVE10", Amount: 25}, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, 2.5, body["discount"])
	assert.Zero(t, f.coupons.rules["SAVE10"].UsedCount, "preview must not consume a slot")
}

func TestApplyCoupon_Unknown(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/coupon/apply",
		applyCouponRequest{Code: "BOGUS", Amount: 25}, asUser(t, "user-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAvailableCoupons_Filtered(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coupons.Create(context.Background(), &coupon.Rule{
		Code:       "EXPIRED",
		Discount:   decimal.NewFromInt(10),
		ExpiryDate: time.Now().AddDate(0, 0, -2),
		IsActive:   true,
	}))
	require.NoError(t, f.coupons.Create(context.Background(), &coupon.Rule{
		Code:       "USEDUP",
		Discount:   decimal.NewFromInt(10),
		ExpiryDate: time.Now().AddDate(0, 1, 0),
		IsActive:   true,
		UsageLimit: 1,
		UsedCount:  1,
	}))

	w := f.do(t, http.MethodGet, "/api/coupon/available", nil, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	coupons := decodeBody(t, w)["coupons"].([]any)
	require.Len(t, coupons, 1)
	assert.Equal(t, "SAVE10", coupons[0].(map[string]any)["code"])
}

func TestCreateCoupon(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/coupon/create", createCouponRequest{
		Code:       "spring20",
		Discount:   20,
		MinAmount:  50,
		ExpiryDate: "2027-04-01",
		UsageLimit: 200,
	}, asSeller("seller-key"))

	require.Equal(t, http.StatusOK, w.Code)
	created, ok := f.coupons.rules["SPRING20"]
	require.True(t, ok, "codes are stored upper-cased")
	assert.Equal(t, 200, created.UsageLimit)
}

func TestCreateCoupon_BadExpiry(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/coupon/create", createCouponRequest{
		Code:       "X",
		Discount:   10,
		ExpiryDate: "April 1st",
	}, asSeller("seller-key"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCoupons_IncludesCounters(t *testing.T) {
	f := newFixture(t)
	f.coupons.rules["SAVE10"].UsedCount = 3

	w := f.do(t, http.MethodGet, "/api/coupon/list", nil, asSeller("seller-key"))

	require.Equal(t, http.StatusOK, w.Code)
	coupons := decodeBody(t, w)["coupons"].([]any)
	require.Len(t, coupons, 1)
	c := coupons[0].(map[string]any)
	assert.Equal(t, 3.0, c["usedCount"])
	assert.Equal(t, 5.0, c["usageLimit"])
}

// --- Cart ---

func TestUpdateCart(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/cart/update",
		updateCartRequest{CartItems: map[string]int{"p1": 3}}, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.Cart{"p1": 3}, f.users.carts["user-1"])
}

// --- Webhook ---

func placeOnline(t *testing.T, f *fixture, couponCode string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/orders/stripe", placeOrderRequest{
		Items:      []orderItemRequest{{Product: "p2", Quantity: 10}},
		Address:    "addr-1",
		CouponCode: couponCode,
	}, asUser(t, "user-1"))
	require.Equal(t, http.StatusOK, w.Code)

	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	require.Len(t, f.orders.byID, 1)
	for id := range f.orders.byID {
		return id
	}
	return ""
}

func webhookBody(orderID, eventType string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"payment_status": "paid",
				"metadata": map[string]string{
					"orderId":    orderID,
					"userId":     "user-1",
					"couponCode": "SAVE10",
					"discount":   "3",
				},
			},
		},
	})
	return raw
}

func (f *fixture) deliverWebhook(t *testing.T, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/payment", bytes.NewReader(body))
	req.Header.Set("Payment-Signature", sig)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhook_SessionCompleted(t *testing.T) {
	f := newFixture(t)
	orderID := placeOnline(t, f, "SAVE10")

	body := webhookBody(orderID, payment.EventSessionCompleted)
	sig := payment.SignPayload(body, webhookSecret, time.Now())

	w := f.deliverWebhook(t, body, sig)
	require.Equal(t, http.StatusOK, w.Code)

	o, err := f.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, o.IsPaid)
	assert.Equal(t, 1, f.coupons.rules["SAVE10"].UsedCount)
}

func TestPaymentWebhook_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	orderID := placeOnline(t, f, "SAVE10")

	body := webhookBody(orderID, payment.EventSessionCompleted)
	sig := payment.SignPayload(body, webhookSecret, time.Now())

	require.Equal(t, http.StatusOK, f.deliverWebhook(t, body, sig).Code)
	require.Equal(t, http.StatusOK, f.deliverWebhook(t, body, sig).Code)

	assert.Equal(t, 1, f.coupons.rules["SAVE10"].UsedCount, "redelivery must not double-redeem")
}

func TestPaymentWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)
	orderID := placeOnline(t, f, "")

	body := webhookBody(orderID, payment.EventSessionCompleted)
	sig := payment.SignPayload(body, []byte("wrong-secret"), time.Now())

	w := f.deliverWebhook(t, body, sig)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	o, err := f.orders.GetByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.False(t, o.IsPaid, "rejected notification must not change state")
}

func TestPaymentWebhook_SessionExpired(t *testing.T) {
	f := newFixture(t)
	orderID := placeOnline(t, f, "")

	body := webhookBody(orderID, payment.EventSessionExpired)
	sig := payment.SignPayload(body, webhookSecret, time.Now())

	w := f.deliverWebhook(t, body, sig)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := f.orders.GetByID(context.Background(), orderID)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestPaymentWebhook_UnknownEventAcknowledged(t *testing.T) {
	f := newFixture(t)

	body := webhookBody("order-x", "invoice.created")
	sig := payment.SignPayload(body, webhookSecret, time.Now())

	w := f.deliverWebhook(t, body, sig)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Payment sync ---

func TestSyncPayment_NotConfirmed(t *testing.T) {
	f := newFixture(t)
	orderID := placeOnline(t, f, "")
	f.processor.session = &payment.Session{ID: "cs_1", PaymentStatus: payment.StatusUnpaid}

	w := f.do(t, http.MethodPost, "/api/orders/"+orderID+"/sync-payment", nil, asSeller("seller-key"))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "payment not confirmed yet", body["message"])
}

func TestSyncPayment_Paid(t *testing.T) {
	f := newFixture(t)
	orderID := placeOnline(t, f, "")
	f.processor.session = &payment.Session{ID: "cs_1", PaymentStatus: payment.StatusPaid}

	w := f.do(t, http.MethodPost, "/api/orders/"+orderID+"/sync-payment", nil, asSeller("seller-key"))

	require.Equal(t, http.StatusOK, w.Code)
	o := decodeBody(t, w)["order"].(map[string]any)
	assert.Equal(t, true, o["isPaid"])
}
