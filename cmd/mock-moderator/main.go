// mock-moderator mimics the moderation engine's chat completions endpoint.
// It classifies with a crude keyword heuristic so the relay's approve and
// block paths both light up without a real API key.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"corelay/internal/logging"
)

type mockConfig struct {
	Port         string `envconfig:"PORT" default:"8082"`
	LogFormat    string `envconfig:"LOG_FORMAT" default:"text"`
	ForceOutcome string `envconfig:"MOCK_FORCE_OUTCOME" default:""` // "" | approve | block
	DelayMs      int    `envconfig:"MOCK_DELAY_MS" default:"0"`
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type verdict struct {
	IsAppropriate bool     `json:"isAppropriate"`
	Issues        []string `json:"issues"`
	Suggestions   []string `json:"suggestions"`
	Tone          string   `json:"tone"`
	Severity      string   `json:"severity"`
}

var hostileWords = []string{
	"terrible", "awful", "hate", "stupid", "idiot", "useless",
	"your fault", "you always", "you never", "selfish", "liar",
}

func classify(content string) verdict {
	lower := strings.ToLower(content)
	var issues []string
	for _, w := range hostileWords {
		if strings.Contains(lower, w) {
			issues = append(issues, "hostile or blaming language: "+w)
		}
	}
	if len(issues) > 0 {
		return verdict{
			IsAppropriate: false,
			Issues:        issues,
			Suggestions:   []string{"State the facts without characterizing the other parent", "Focus on what your children need"},
			Tone:          "hostile",
			Severity:      "high",
		}
	}
	return verdict{
		IsAppropriate: true,
		Issues:        []string{},
		Suggestions:   []string{},
		Tone:          "neutral",
		Severity:      "low",
	}
}

func handleCompletions(cfg mockConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.DelayMs > 0 {
			time.Sleep(time.Duration(cfg.DelayMs) * time.Millisecond)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		content := ""
		for _, m := range req.Messages {
			if m.Role == "user" {
				content = m.Content
			}
		}

		var v verdict
		switch cfg.ForceOutcome {
		case "approve":
			v = verdict{IsAppropriate: true, Issues: []string{}, Suggestions: []string{}, Tone: "neutral", Severity: "low"}
		case "block":
			v = verdict{IsAppropriate: false, Issues: []string{"forced block"}, Suggestions: []string{"rephrase"}, Tone: "hostile", Severity: "high"}
		default:
			v = classify(content)
		}

		verdictJSON, _ := json.Marshal(v)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": string(verdictJSON)}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func main() {
	var cfg mockConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	logging.Init("mock-moderator", cfg.LogFormat)

	r := mux.NewRouter()
	r.HandleFunc("/v1/chat/completions", handleCompletions(cfg)).Methods(http.MethodPost)

	slog.Info("mock moderator listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock moderator failed", "err", err)
		os.Exit(1)
	}
}
