// Package httpapi exposes a small read-only status surface over the
// store: list an order and its payments.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/paymentfabric/slashpay-engine/internal/domain/store"
)

type StatusHandler struct {
	Store store.Store
}

func (h *StatusHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	order, err := h.Store.GetOrder(r.Context(), id, store.GetOptions{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

func (h *StatusHandler) ListOrderPayments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	payments, err := h.Store.GetOutgoingPayments(r.Context(), map[string]any{"orderId": id}, store.GetOptions{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

func (h *StatusHandler) GetIncomingPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	payment, err := h.Store.GetIncomingPayment(r.Context(), id, store.GetOptions{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payment)
}
