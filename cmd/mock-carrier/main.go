// mock-carrier is a Twilio-compatible stand-in for local runs: it accepts
// Messages.json posts, records them in memory, and answers with configurable
// outcomes so the relay's retry and breaker paths can be exercised.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"corelay/internal/logging"
)

type mockConfig struct {
	Port        string  `envconfig:"PORT" default:"8081"`
	LogFormat   string  `envconfig:"LOG_FORMAT" default:"text"`
	OutcomeMode string  `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"` // fixed | random
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"0"`
}

type sentMessage struct {
	Sid  string    `json:"sid"`
	To   string    `json:"to"`
	From string    `json:"from"`
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

type sendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

type carrier struct {
	cfg mockConfig

	mu   sync.Mutex
	sent []sentMessage
	seq  int
}

func (c *carrier) handleSend(w http.ResponseWriter, r *http.Request) {
	if c.cfg.DelayMs > 0 {
		time.Sleep(time.Duration(c.cfg.DelayMs) * time.Millisecond)
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	to := r.PostForm.Get("To")
	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if to == "" || body == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "failed", Message: "missing To or Body"})
		return
	}

	if c.cfg.OutcomeMode == "random" && rand.Float64() > c.cfg.SuccessRate {
		code := 30008
		writeJSON(w, http.StatusInternalServerError, sendResponse{Status: "failed", ErrorCode: &code, Message: "mock delivery failure"})
		return
	}

	c.mu.Lock()
	c.seq++
	msg := sentMessage{
		Sid:  fmt.Sprintf("SM_mock_%06d", c.seq),
		To:   to, From: from, Body: body,
		At: time.Now().UTC(),
	}
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	slog.Info("mock carrier accepted message", "sid", msg.Sid, "to", to)
	writeJSON(w, http.StatusCreated, sendResponse{Sid: msg.Sid, Status: "queued"})
}

func (c *carrier) handleList(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	out := make([]sentMessage, len(c.sent))
	copy(out, c.sent)
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	var cfg mockConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("mock-carrier", cfg.LogFormat)

	c := &carrier{cfg: cfg}
	r := mux.NewRouter()
	r.HandleFunc("/2010-04-01/Accounts/{sid}/Messages.json", c.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/messages", c.handleList).Methods(http.MethodGet)

	slog.Info("mock carrier listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock carrier failed", "err", err)
		os.Exit(1)
	}
}
