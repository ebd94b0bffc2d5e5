package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/order"
)

// Response messages.
const (
	msgRequiredFields   = "Name, email, address, and items are required"
	msgInvalidItem      = "Invalid item structure. Each item must contain itemId, name, quantity, and price"
	msgInvalidBody      = "Invalid request body"
	msgNoOrdersForEmail = "No orders found for this email"
	msgNoOrders         = "No orders found"
	msgCancelled        = "Order cancelled successfully"
	msgAddressUpdated   = "Delivery address updated successfully"
	msgOrderNotFound    = "Order not found or already cancelled"
	msgAddressRequired  = "New address is required"
)

// PlaceOrder decodes and validates the order body, places the order and
// answers 201 with the stored order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(w, r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req, err := decodePlaceOrder(body)
	if err == nil {
		var o order.Order
		o, err = h.orders.PlaceOrder(ctx, req)
		if err == nil {
			writeJSON(w, r, http.StatusCreated, o.Encode)
			return
		}
	}

	switch {
	case errors.Is(err, order.ErrRequiredFields):
		writeMessage(w, r, http.StatusBadRequest, msgRequiredFields)
	case errors.Is(err, order.ErrInvalidItem):
		writeMessage(w, r, http.StatusBadRequest, msgInvalidItem)
	default:
		zctx.From(ctx).Debug("Decode order", zap.Error(err))
		writeMessage(w, r, http.StatusBadRequest, msgInvalidBody)
	}
}

// OrderDetails lists the active orders of the customer in the path.
func (h *Handler) OrderDetails(w http.ResponseWriter, r *http.Request) {
	orders := h.orders.OrdersByEmail(r.Context(), mux.Vars(r)["email"])
	if len(orders) == 0 {
		writeMessage(w, r, http.StatusNotFound, msgNoOrdersForEmail)
		return
	}
	writeOrders(w, r, orders)
}

// AllOrders lists every active order.
func (h *Handler) AllOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.orders.AllOrders(r.Context())
	if len(orders) == 0 {
		writeMessage(w, r, http.StatusNotFound, msgNoOrders)
		return
	}
	writeOrders(w, r, orders)
}

// CancelOrder cancels the order identified by the path.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	email, id, ok := orderRef(r)
	if !ok || !h.orders.CancelOrder(r.Context(), email, id) {
		writeMessage(w, r, http.StatusNotFound, msgOrderNotFound)
		return
	}
	writeMessage(w, r, http.StatusOK, msgCancelled)
}

// ModifyAddress replaces the delivery address of the order identified by
// the path with newAddress from the body.
func (h *Handler) ModifyAddress(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}
	address, err := decodeNewAddress(body)
	if err != nil {
		zctx.From(r.Context()).Debug("Decode address", zap.Error(err))
		writeMessage(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if address == "" {
		writeMessage(w, r, http.StatusBadRequest, msgAddressRequired)
		return
	}

	email, id, ok := orderRef(r)
	if !ok || !h.orders.ModifyDeliveryAddress(r.Context(), email, id, address) {
		writeMessage(w, r, http.StatusNotFound, msgOrderNotFound)
		return
	}
	writeMessage(w, r, http.StatusOK, msgAddressUpdated)
}

// orderRef extracts the email and numeric order ID from the path. A
// non-numeric ID is reported as not ok.
func orderRef(r *http.Request) (string, int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["orderId"], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return vars["email"], id, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

// decodeNewAddress reads {"newAddress": "..."}; a missing or non-string
// value yields "".
func decodeNewAddress(data []byte) (string, error) {
	var address string
	d, err := objectDecoder(data)
	if err != nil {
		return "", err
	}
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "newAddress" {
			return d.Skip()
		}
		return decodeOptString(d, &address)
	})
	if err != nil {
		return "", errors.Wrap(err, "decode body")
	}
	return address, nil
}
