package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"payment-limiter/internal/service"
	"payment-limiter/internal/util"
)

const maxBodyBytes = 10000

// Limiter decides whether a caller may proceed.
type Limiter interface {
	IsAllowed(key string) bool
}

// PaymentRecorder counts processed payments by final status.
type PaymentRecorder interface {
	RecordPayment(status string)
}

type Handler struct {
	Service  *service.Service
	Limiter  Limiter
	Recorder PaymentRecorder
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

func NewHandler(s *service.Service, l Limiter, log zerolog.Logger) *Handler {
	return &Handler{
		Service: s,
		Limiter: l,
		Log:     log,
	}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/pay", h.Pay).Methods(http.MethodPost)
	r.HandleFunc("/health", h.Healthz).Methods(http.MethodGet)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Use(h.logRequests)

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, req)
		h.Log.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", m.Code).
			Dur("duration", m.Duration).
			Msg("request")
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		writeText(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	fields, err := util.ExtractFields(r.Header.Get("Content-Type"), body)
	userID := fields["userId"]
	if err != nil || userID == "" {
		writeText(w, http.StatusBadRequest, "Invalid Request")
		return
	}

	if !h.Limiter.IsAllowed(userID) {
		h.Log.Debug().Str("user_id", userID).Msg("rate limit exceeded")
		writeText(w, http.StatusTooManyRequests, "Too Many Requests")
		return
	}

	rawAmount := fields["amount"]
	amount, ok := util.ParseAmount(rawAmount)
	if !ok {
		writeText(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	p, err := h.Service.Pay(r.Context(), userID, fields["paymentId"], amount)
	if p != nil {
		h.record(string(p.Status))
	}
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "Payment successful for user: "+userID+" amount: "+rawAmount)
	case errors.Is(err, service.ErrDuplicate):
		writeText(w, http.StatusConflict, "Duplicate payment prevented")
	case errors.Is(err, service.ErrDeclined):
		writeText(w, http.StatusPaymentRequired, "Payment Failed")
	default:
		h.Log.Error().Err(err).Str("user_id", userID).Msg("payment error")
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (h *Handler) record(status string) {
	if h.Recorder != nil {
		h.Recorder.RecordPayment(status)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
