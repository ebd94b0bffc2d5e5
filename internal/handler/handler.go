package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/order"
)

// PathPrefix is where the order routes are mounted.
const PathPrefix = "/api/orders"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the order API, delegating business logic to the order
// service.
type Handler struct {
	orders *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Register mounts the order routes under PathPrefix on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix(PathPrefix).Subrouter()
	api.HandleFunc("/place-order", h.PlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/order-details/{email}", h.OrderDetails).Methods(http.MethodGet)
	api.HandleFunc("/all-orders", h.AllOrders).Methods(http.MethodGet)
	api.HandleFunc("/cancel-order/{email}/{orderId}", h.CancelOrder).Methods(http.MethodDelete)
	api.HandleFunc("/modify-address/{email}/{orderId}", h.ModifyAddress).Methods(http.MethodPut)
}

// NewRouter returns a router serving the order API, with JSON bodies for
// unknown routes and methods.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// writeJSON writes a JSON body produced by encode.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("Write response", zap.Error(err))
	}
}

// writeMessage writes {"message": msg}.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeOrders(w http.ResponseWriter, r *http.Request, orders []order.Order) {
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, o := range orders {
			o.Encode(e)
		}
		e.ArrEnd()
	})
}
