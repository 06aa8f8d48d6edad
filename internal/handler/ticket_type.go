package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// InventoryService is the part of service.InventoryService used here.
type InventoryService interface {
	CreateTicketType(ctx context.Context, name string, capacity int) (model.TicketType, error)
	ListTicketTypes(ctx context.Context) ([]model.TicketType, error)
	Availability(ctx context.Context, ticketTypeID uint64) (service.Availability, error)
}

// TicketTypeHandler serves ticket type creation and browsing.
type TicketTypeHandler struct {
	Inventory InventoryService
}

func NewTicketTypeHandler(inv InventoryService) *TicketTypeHandler {
	if inv == nil {
		panic("nil inventory service passed to NewTicketTypeHandler")
	}
	return &TicketTypeHandler{Inventory: inv}
}

type ticketTypeResponse struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	Available *int      `json:"available,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toTicketTypeResponse(tt model.TicketType) ticketTypeResponse {
	return ticketTypeResponse{ID: tt.ID, Name: tt.Name, Capacity: tt.Capacity, CreatedAt: tt.CreatedAt}
}

// Create handles POST /v1/ticket-types.  Body: {"name": "...", "capacity": n}.
// The ticket type and its tickets are created together.
func (h *TicketTypeHandler) Create(c echo.Context) error {
	var body struct {
		Name     string `json:"name"`
		Capacity *int   `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body")
	}
	if body.Capacity == nil {
		return writeError(c, http.StatusBadRequest, codeInvalidCapacity, "capacity is required")
	}
	tt, err := h.Inventory.CreateTicketType(c.Request().Context(), body.Name, *body.Capacity)
	if err != nil {
		return writeServiceError(c, err)
	}
	resp := toTicketTypeResponse(tt)
	available := tt.Capacity
	resp.Available = &available
	return c.JSON(http.StatusCreated, resp)
}

// List handles GET /v1/ticket-types.
func (h *TicketTypeHandler) List(c echo.Context) error {
	types, err := h.Inventory.ListTicketTypes(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	out := make([]ticketTypeResponse, 0, len(types))
	for _, tt := range types {
		out = append(out, toTicketTypeResponse(tt))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/ticket-types/:id with a snapshot of free tickets.
func (h *TicketTypeHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return writeError(c, http.StatusBadRequest, codeInvalidRequest, "invalid ticket type id")
	}
	av, err := h.Inventory.Availability(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	resp := toTicketTypeResponse(av.TicketType)
	resp.Available = &av.Available
	return c.JSON(http.StatusOK, resp)
}
