package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/coupon"
	"github.com/xenking/greencart-api/internal/domain/order"
	"github.com/xenking/greencart-api/internal/domain/product"
)

// response is the common envelope: success flag plus optional message and
// payload fields.
type response struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message,omitempty"`
	Order    any         `json:"order,omitempty"`
	Orders   any         `json:"orders,omitempty"`
	Products any         `json:"products,omitempty"`
	Product  any         `json:"product,omitempty"`
	Coupons  any         `json:"coupons,omitempty"`
	Coupon   any         `json:"coupon,omitempty"`
	Discount *float64    `json:"discount,omitempty"`
	URL      string      `json:"url,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func ok(w http.ResponseWriter, r *http.Request, body response) {
	body.Success = true
	writeJSON(w, r, http.StatusOK, body)
}

func fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, response{Success: false, Message: message})
}

// orderView is the client-facing order shape.
type orderView struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Items         []lineItemView `json:"items"`
	Amount        float64        `json:"amount"`
	Discount      float64        `json:"discount"`
	CouponCode    string         `json:"couponCode,omitempty"`
	AddressID     string         `json:"addressId"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"paymentType"`
	IsPaid        bool           `json:"isPaid"`
	CreatedAt     string         `json:"createdAt"`
}

type lineItemView struct {
	ProductID string  `json:"product"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

func viewOrder(o *order.Order) orderView {
	items := make([]lineItemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemView{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
		}
	}
	return orderView{
		ID:            o.ID,
		UserID:        o.UserID,
		Items:         items,
		Amount:        o.Amount.InexactFloat64(),
		Discount:      o.Discount.InexactFloat64(),
		CouponCode:    o.CouponCode,
		AddressID:     o.AddressID,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		IsPaid:        o.IsPaid,
		CreatedAt:     o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func viewOrders(orders []order.Order) []orderView {
	out := make([]orderView, len(orders))
	for i := range orders {
		out[i] = viewOrder(&orders[i])
	}
	return out
}

// couponView redacts internal usage counters from shopper-facing responses.
type couponView struct {
	Code        string  `json:"code"`
	Discount    float64 `json:"discount"`
	MinAmount   float64 `json:"minAmount"`
	MaxDiscount float64 `json:"maxDiscount"`
	ExpiryDate  string  `json:"expiryDate"`
}

func viewCoupon(c *coupon.Rule) couponView {
	return couponView{
		Code:        c.Code,
		Discount:    c.Discount.InexactFloat64(),
		MinAmount:   c.MinAmount.InexactFloat64(),
		MaxDiscount: c.MaxDiscount.InexactFloat64(),
		ExpiryDate:  c.ExpiryDate.Format("2006-01-02"),
	}
}

type productView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	OfferPrice  float64 `json:"offerPrice"`
	InStock     bool    `json:"inStock"`
	Image       string  `json:"image,omitempty"`
}

func (h *Handler) viewProduct(p *product.Product) productView {
	image := p.Image
	if image != "" && h.cfg.ImageBaseURL != "" {
		image = h.cfg.ImageBaseURL + "/" + image
	}
	return productView{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		OfferPrice:  p.OfferPrice.InexactFloat64(),
		InStock:     p.InStock,
		Image:       image,
	}
}
