package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"corelay/internal/domain"
	"corelay/internal/service"
	"corelay/internal/util"
)

// API serves the dashboard endpoints and the carrier webhook. Signature
// verification runs only when PublicURL is set; local runs against the mock
// carrier leave it empty.
type API struct {
	Svc             *service.RelayService
	VerifySignature func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken       string
	PublicURL       string
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/api/messages", a.handleListMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/parent-pairs", a.handleListPairs).Methods(http.MethodGet)
	r.HandleFunc("/api/parent-pairs", a.handleCreatePair).Methods(http.MethodPost)
	r.HandleFunc("/api/sms/webhook", a.handleSMSWebhook).Methods(http.MethodPost)
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.Svc.ListMessages(r.Context())
	if err != nil {
		slog.Error("list messages failed", "err", err)
		http.Error(w, ErrListMessages, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(messages)
}

func (a *API) handleListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := a.Svc.ListPairs(r.Context())
	if err != nil {
		slog.Error("list parent pairs failed", "err", err)
		http.Error(w, ErrListPairs, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pairs)
}

func (a *API) handleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, ErrMissingFields, http.StatusBadRequest)
		return
	}

	pair, err := a.Svc.RegisterPair(r.Context(), req.Phone1, req.Phone2, util.NowUTC())
	if err != nil {
		if errors.Is(err, domain.ErrMissingFields) {
			http.Error(w, ErrMissingFields, http.StatusBadRequest)
			return
		}
		slog.Error("create parent pair failed", "err", err)
		http.Error(w, ErrCreatePair, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pair)
}

func (a *API) handleSMSWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return
	}
	if a.PublicURL != "" {
		sig := r.Header.Get("X-Twilio-Signature")
		if a.VerifySignature == nil || !a.VerifySignature(a.AuthToken, a.PublicURL, sig, r.PostForm) {
			http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
			return
		}
	}

	in := domain.InboundSMS{
		From: r.PostForm.Get("From"),
		To:   r.PostForm.Get("To"),
		Body: r.PostForm.Get("Body"),
	}
	if err := in.Validate(); err != nil {
		http.Error(w, ErrMissingFields, http.StatusBadRequest)
		return
	}

	if err := a.Svc.HandleInbound(r.Context(), in, util.NowUTC()); err != nil {
		slog.Error("sms webhook processing failed", "err", err, "from", in.From)
		http.Error(w, ErrProcessMessage, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
