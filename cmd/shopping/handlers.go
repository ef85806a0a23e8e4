package main

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mini-call/client"
	"mini-call/guard"
	"mini-call/message"
	"mini-call/server"
)

const paymentTimeout = 2 * time.Second

// billingBinding declares the billing operations shopping uses.
func billingBinding(dependency string) (*client.Binding, error) {
	return client.NewBinding(map[string]client.Endpoint{
		"payment": {
			Dependency:   dependency,
			Method:       http.MethodGet,
			PathTemplate: "/billing-api/payment",
			Timeout:      paymentTimeout,
		},
		"paymentByCard": {
			Dependency:   dependency,
			Method:       http.MethodGet,
			PathTemplate: "/billing-api/payment/{cardNo}",
			Timeout:      paymentTimeout,
		},
	})
}

type handlers struct {
	guard   *guard.Guard
	direct  guard.Invoker // unprotected path, for the card purchase
	binding *client.Binding
	logger  *zap.Logger
}

func (h *handlers) routes() []server.Route {
	return []server.Route{
		{
			Name:        "PURCHASE",
			Method:      http.MethodGet,
			Pattern:     "/shopping-api/purchase",
			HandlerFunc: h.purchase,
		},
		{
			Name:        "PURCHASE_BY_CARD",
			Method:      http.MethodGet,
			Pattern:     "/shopping-api/purchase/{cardNo}",
			HandlerFunc: h.purchaseByCard,
		},
	}
}

// purchase pays through the breaker; a degraded result is answered with the
// fallback's own status and body.
func (h *handlers) purchase(w http.ResponseWriter, r *http.Request) {
	res := h.guard.CallBinding(r.Context(), "payment", nil)
	if !res.OK() {
		h.logger.Warn("payment degraded", zap.Error(res.Cause))
		writeText(w, res.Response.StatusCode, res.Response.Text())
		return
	}
	h.logger.Info("payment service invoked", zap.String("result", res.Response.Text()))
	writeText(w, http.StatusOK, "Shopping is done.Payment Status: "+res.Response.Text())
}

// purchaseByCard calls billing directly, without breaker or fallback.
func (h *handlers) purchaseByCard(w http.ResponseWriter, r *http.Request) {
	cardNo := server.PathVar(r, "cardNo")
	if _, err := strconv.ParseInt(cardNo, 10, 64); err != nil {
		writeText(w, http.StatusBadRequest, "invalid card number")
		return
	}

	var resp *message.Response
	desc, err := h.binding.Describe("paymentByCard", map[string]string{"cardNo": cardNo})
	if err == nil {
		resp, err = h.direct.Do(r.Context(), desc)
	}
	if err != nil {
		h.logger.Error("error occurred while invoking payment service", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Shopping failed due to payment error.")
		return
	}
	writeText(w, http.StatusOK, "Shopping is done.Payment Status: "+resp.Text())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
