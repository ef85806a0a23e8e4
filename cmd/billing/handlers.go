package main

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mini-call/registry"
	"mini-call/server"
)

const maxAmount = 100000000

type handlers struct {
	instance func() registry.Instance
	amount   func() int
	logger   *zap.Logger
}

func newHandlers(instance func() registry.Instance, logger *zap.Logger) *handlers {
	return &handlers{
		instance: instance,
		amount:   func() int { return rand.Intn(maxAmount) },
		logger:   logger,
	}
}

func (h *handlers) routes() []server.Route {
	return []server.Route{
		{
			Name:        "PAYMENT",
			Method:      http.MethodGet,
			Pattern:     "/billing-api/payment",
			HandlerFunc: h.payment,
		},
		{
			Name:        "PAYMENT_BY_CARD",
			Method:      http.MethodGet,
			Pattern:     "/billing-api/payment/{cardNo}",
			HandlerFunc: h.paymentByCard,
		},
	}
}

func (h *handlers) payment(w http.ResponseWriter, r *http.Request) {
	inst := h.instance()
	h.logger.Info("received request to process payment", zap.String("instance", inst.InstanceID))

	msg := fmt.Sprintf("Bill Amount is %d. Payment can be done via Cards, UPI Payment %s : %d",
		h.amount(), inst.InstanceID, inst.Port)
	writeText(w, http.StatusOK, msg)
}

func (h *handlers) paymentByCard(w http.ResponseWriter, r *http.Request) {
	cardNo, err := strconv.ParseInt(server.PathVar(r, "cardNo"), 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, "invalid card number")
		return
	}
	inst := h.instance()
	h.logger.Info("received request to process card payment", zap.String("instance", inst.InstanceID))

	msg := fmt.Sprintf("Bill Amount is %d. Payment can be done using CardNO: %d. Instance ID: %s, Port: %d",
		h.amount(), cardNo, inst.InstanceID, inst.Port)
	writeText(w, http.StatusOK, msg)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
