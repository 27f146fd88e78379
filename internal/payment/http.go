package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// HTTPClient implements Client against the processor's JSON API.
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient for the given API base URL and secret
// key.
func NewHTTPClient(baseURL, secretKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// sessionPayload mirrors the processor's session resource on the wire.
// Monetary amounts travel in minor units (cents).
type sessionPayload struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type createSessionRequest struct {
	Mode       string            `json:"mode"`
	LineItems  []lineItemPayload `json:"line_items"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type lineItemPayload struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
	Currency   string `json:"currency"`
}

// CreateSession opens a hosted checkout session.
func (c *HTTPClient) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	lines := make([]lineItemPayload, len(params.Lines))
	for i, l := range params.Lines {
		lines[i] = lineItemPayload{
			Name:       l.Name,
			UnitAmount: l.UnitAmount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
			Quantity:   l.Quantity,
			Currency:   "usd",
		}
	}

	body := createSessionRequest{
		Mode:       "payment",
		LineItems:  lines,
		SuccessURL: params.SuccessURL,
		CancelURL:  params.CancelURL,
		Metadata:   encodeMetadata(params.Metadata),
	}

	var resp sessionPayload
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", body, &resp); err != nil {
		return nil, err
	}
	return decodeSession(resp)
}

// GetSession fetches a session by its identifier.
func (c *HTTPClient) GetSession(ctx context.Context, id string) (*Session, error) {
	var resp sessionPayload
	err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+id, nil, &resp)
	if err != nil {
		return nil, err
	}
	return decodeSession(resp)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(ErrProcessor, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(ErrProcessor, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSessionNotFound
	case resp.StatusCode >= 400:
		return errors.Wrapf(ErrProcessor, "status %d: %s", resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(ErrProcessor, "decode response")
	}
	return nil
}

func encodeMetadata(m Metadata) map[string]string {
	return map[string]string{
		"orderId":    m.OrderID,
		"userId":     m.UserID,
		"couponCode": m.CouponCode,
		"discount":   m.Discount.String(),
	}
}

func decodeSession(p sessionPayload) (*Session, error) {
	meta, err := decodeMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:            p.ID,
		URL:           p.URL,
		PaymentStatus: p.PaymentStatus,
		Metadata:      meta,
	}, nil
}

func decodeMetadata(m map[string]string) (Metadata, error) {
	meta := Metadata{
		OrderID:    m["orderId"],
		UserID:     m["userId"],
		CouponCode: m["couponCode"],
		Discount:   decimal.Zero,
	}
	if raw, ok := m["discount"]; ok && raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Metadata{}, errors.Wrapf(err, "parse discount metadata %q", raw)
		}
		meta.Discount = d
	}
	return meta, nil
}
