// Package chat proxies viewer chat requests to an OpenAI-compatible
// completion API and re-streams the reply in the line-delimited form the
// viewer's chat widget consumes. The upstream credential stays on the
// server; the browser never sees it.
package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds the upstream completion API settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
}

// Proxy relays chat requests upstream and streams the answer back.
type Proxy struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a chat proxy. An empty BaseURL disables the endpoint.
func New(cfg Config) *Proxy {
	return &Proxy{
		cfg: cfg,
		// No overall timeout: completions stream for as long as the
		// model keeps talking.
		httpClient: &http.Client{},
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Handler serves POST /api/chat. The request body carries the message
// history; the response is a stream of "0:<json string>" lines, one per
// content delta.
func (p *Proxy) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.cfg.BaseURL == "" {
			writeChatError(w, "chat_disabled", "No chat backend configured", http.StatusServiceUnavailable)
			return
		}

		var req struct {
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeChatError(w, "invalid_body", err.Error(), http.StatusBadRequest)
			return
		}

		messages := req.Messages
		if p.cfg.SystemPrompt != "" {
			messages = append([]Message{{Role: "system", Content: p.cfg.SystemPrompt}}, messages...)
		}

		body, err := json.Marshal(completionRequest{
			Model:    p.cfg.Model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			writeChatError(w, "internal_error", err.Error(), http.StatusInternalServerError)
			return
		}

		url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
		upstream, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			writeChatError(w, "internal_error", err.Error(), http.StatusInternalServerError)
			return
		}
		upstream.Header.Set("Content-Type", "application/json")
		if p.cfg.APIKey != "" {
			upstream.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		}

		start := time.Now()
		resp, err := p.httpClient.Do(upstream)
		if err != nil {
			log.Error().Err(err).Msg("chat upstream unreachable")
			writeChatError(w, "upstream_error", err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			log.Error().Int("status", resp.StatusCode).Msg("chat upstream rejected request")
			writeChatError(w, "upstream_error",
				fmt.Sprintf("upstream returned status %d", resp.StatusCode), http.StatusBadGateway)
			return
		}

		flusher, _ := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")

		chunks := 0
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				log.Debug().Err(err).Msg("skip malformed chat chunk")
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			encoded, err := json.Marshal(chunk.Choices[0].Delta.Content)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "0:%s\n", encoded); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			chunks++
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("chat stream interrupted")
			return
		}

		log.Info().Int("chunks", chunks).Dur("duration", time.Since(start)).Msg("chat completed")
	}
}

func writeChatError(w http.ResponseWriter, token, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": token, "details": details})
}
