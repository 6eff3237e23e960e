package httpapi

import (
	"time"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

type CreateOrderRequest struct {
	RequesterID string               `json:"requester_id"`
	Items       []CreateOrderItemDTO `json:"items"`
}

type CreateOrderItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ChangeStatusRequest struct {
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CreateOrderResponse struct {
	Order   OrderResponse           `json:"order"`
	Payment *PaymentSessionResponse `json:"payment,omitempty"`
	Warning string                  `json:"warning,omitempty"`
}

type PaymentSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type OrderResponse struct {
	ID               string              `json:"id"`
	RequesterID      string              `json:"requester_id"`
	Status           string              `json:"status"`
	TotalAmount      float64             `json:"total_amount"`
	TotalItems       int                 `json:"total_items"`
	Paid             bool                `json:"paid"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	Items            []OrderItemResponse `json:"items,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type OrderPageResponse struct {
	Data []OrderResponse `json:"data"`
	Meta PageMetaDTO     `json:"meta"`
}

type PageMetaDTO struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	LastPage int `json:"last_page"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapOrderToResponse(order orders.Order) OrderResponse {
	return OrderResponse{
		ID:               order.ID,
		RequesterID:      order.RequesterID,
		Status:           string(order.Status),
		TotalAmount:      order.TotalAmount,
		TotalItems:       order.TotalItems,
		Paid:             order.Paid,
		PaidAt:           order.PaidAt,
		PaymentReference: order.PaymentReference,
		Items:            mapItems(order.Items),
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}

func mapItems(items []orders.OrderItem) []OrderItemResponse {
	if len(items) == 0 {
		return nil
	}
	out := make([]OrderItemResponse, len(items))
	for i, item := range items {
		out[i] = OrderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return out
}
