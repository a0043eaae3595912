// Mock completion backend for local development: streams a canned reply on
// the OpenAI wire.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

var tokens = []string{"Hello", "!", " How can I help you today?"}

func handleChat(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	model, _ := body["model"].(string)
	if model == "" {
		model = "mock-model"
	}
	stream, _ := body["stream"].(bool)

	if !stream {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-mock-123",
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "Hello! How can I help you today?"},
				"finish_reason": "stop",
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for i, tok := range tokens {
		var finish any
		if i == len(tokens)-1 {
			finish = "stop"
		}
		chunk := map[string]any{
			"id":      "chatcmpl-mock-123",
			"object":  "chat.completion.chunk",
			"created": 1700000000,
			"model":   model,
			"choices": []map[string]any{{
				"index":         0,
				"delta":         map[string]string{"content": tok},
				"finish_reason": finish,
			}},
		}
		bs, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", bs)
		flusher.Flush()
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleModels(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   []map[string]any{{"id": "mock-model", "object": "model"}},
	})
}

func main() {
	addr := ":8000"
	if v := os.Getenv("VLLM_ADDR"); v != "" {
		addr = v
	}
	http.HandleFunc("POST /v1/chat/completions", handleChat)
	http.HandleFunc("GET /v1/models", handleModels)
	http.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	log.Printf("vLLM mock listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
