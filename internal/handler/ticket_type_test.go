package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCreateTicketTypeHandler(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"created", `{"name":"vip","capacity":3}`, http.StatusCreated, ""},
		{"missing capacity", `{"name":"vip"}`, http.StatusBadRequest, codeInvalidCapacity},
		{"zero capacity", `{"name":"vip","capacity":0}`, http.StatusBadRequest, codeInvalidCapacity},
		{"bad json", `[`, http.StatusBadRequest, codeInvalidRequest},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			app := newTestApp(t)
			c, rec := newContext(http.MethodPost, "/v1/ticket-types", tc.body, 1)
			if err := app.types.Create(c); err != nil {
				t.Fatalf("create: %v", err)
			}
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.code != "" {
				if got := decode[errorBody](t, rec).Code; got != tc.code {
					t.Fatalf("expected code %s, got %s", tc.code, got)
				}
				return
			}
			got := decode[ticketTypeResponse](t, rec)
			if got.Name != "vip" || got.Capacity != 3 || got.Available == nil || *got.Available != 3 {
				t.Fatalf("unexpected response %+v", got)
			}
		})
	}
}

func TestGetTicketTypeReportsAvailability(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	tt, _ := app.inventory.CreateTicketType(context.Background(), "general", 4)
	app.submit(t, 1, tt.ID, 3)

	id := strconv.FormatUint(tt.ID, 10)
	c, rec := newContext(http.MethodGet, "/v1/ticket-types/"+id, "", 0, "id", id)
	if err := app.types.Get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	got := decode[ticketTypeResponse](t, rec)
	if got.Available == nil || *got.Available != 1 {
		t.Fatalf("expected 1 available, got %+v", got)
	}

	c, rec = newContext(http.MethodGet, "/v1/ticket-types/77", "", 0, "id", "77")
	_ = app.types.Get(c)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	c, rec = newContext(http.MethodGet, "/v1/ticket-types/x", "", 0, "id", "x")
	_ = app.types.Get(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListTicketTypesHandler(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	_, _ = app.inventory.CreateTicketType(context.Background(), "a", 1)
	_, _ = app.inventory.CreateTicketType(context.Background(), "b", 2)

	c, rec := newContext(http.MethodGet, "/v1/ticket-types", "", 0)
	if err := app.types.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	list := decode[[]ticketTypeResponse](t, rec)
	if len(list) != 2 || list[0].Name != "a" || list[1].Available != nil {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestReadyProbe(t *testing.T) {
	t.Parallel()
	e := echo.New()
	tests := []struct {
		name   string
		check  func(context.Context) error
		status int
	}{
		{"no check", nil, http.StatusOK},
		{"healthy", func(context.Context) error { return nil }, http.StatusOK},
		{"down", func(context.Context) error { return errors.New("down") }, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)
		if err := Ready(tc.check)(c); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
	}
}
