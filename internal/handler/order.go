package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// BookingService is the part of service.BookingService used here.
type BookingService interface {
	Submit(ctx context.Context, userID, ticketTypeID uint64, quantity int) (model.Order, error)
	GetOrder(ctx context.Context, userID uint64, orderID string) (model.Order, error)
	ListOrders(ctx context.Context, userID uint64) ([]model.Order, error)
	CancelForUser(ctx context.Context, userID uint64, orderID string) (model.Order, error)
}

// OrderHandler serves order submission, lookup and cancellation.  Every
// route is scoped to the authenticated requester.
type OrderHandler struct {
	Booking BookingService
}

func NewOrderHandler(b BookingService) *OrderHandler {
	if b == nil {
		panic("nil booking service passed to NewOrderHandler")
	}
	return &OrderHandler{Booking: b}
}

type orderResponse struct {
	ID           string     `json:"id"`
	TicketTypeID uint64     `json:"ticket_type_id"`
	Quantity     int        `json:"quantity"`
	Status       string     `json:"status"`
	TicketIDs    []uint64   `json:"ticket_ids"`
	CreatedAt    time.Time  `json:"created_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

func toOrderResponse(o model.Order) orderResponse {
	ids := o.TicketIDs
	if ids == nil {
		ids = []uint64{}
	}
	return orderResponse{
		ID:           o.ID,
		TicketTypeID: o.TicketTypeID,
		Quantity:     o.Quantity,
		Status:       string(o.Status),
		TicketIDs:    ids,
		CreatedAt:    o.CreatedAt,
		CancelledAt:  o.CancelledAt,
	}
}

// Create handles POST /v1/orders.  Body: {"ticket_type_id": n, "quantity": n}.
// A fulfilled order returns 201.  When not enough tickets could be claimed
// the FAILED order is returned with 409 and code insufficient_supply.
func (h *OrderHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return writeError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	var body struct {
		TicketTypeID uint64 `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	if body.TicketTypeID == 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "ticket_type_id is required")
	}
	o, err := h.Booking.Submit(c.Request().Context(), userID, body.TicketTypeID, body.Quantity)
	if err != nil {
		return writeServiceError(c, err)
	}
	if o.Status == model.OrderFailed {
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "not enough tickets available",
			"code":  codeInsufficientSupply,
			"order": toOrderResponse(o),
		})
	}
	return c.JSON(http.StatusCreated, toOrderResponse(o))
}

// List handles GET /v1/orders.
func (h *OrderHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return writeError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	orders, err := h.Booking.ListOrders(c.Request().Context(), userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return writeError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	id, ok := orderIDParam(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid order id")
	}
	o, err := h.Booking.GetOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

// Cancel handles POST /v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return writeError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	id, ok := orderIDParam(c)
	if !ok {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid order id")
	}
	o, err := h.Booking.CancelForUser(c.Request().Context(), userID, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

func orderIDParam(c echo.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
