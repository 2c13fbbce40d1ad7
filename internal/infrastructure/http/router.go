package httpapi

import "net/http"

func NewRouter(handler *StatusHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /orders/{id}", handler.GetOrder)
	mux.HandleFunc("GET /orders/{id}/payments", handler.ListOrderPayments)
	mux.HandleFunc("GET /invoices/{id}", handler.GetIncomingPayment)

	return mux
}
