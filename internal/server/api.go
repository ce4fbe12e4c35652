package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jpalmerr/bifrost/internal/names"
	"github.com/jpalmerr/bifrost/internal/telemetry"
)

const maxRequestBody = 64 << 10

type historyResponse struct {
	History []telemetry.Sample `json:"history"`
}

type topicInfo struct {
	Topic   string `json:"topic"`
	Name    string `json:"name"`
	Samples int    `json:"samples"`
}

type nameUpdate struct {
	Topic string `json:"topic"`
	Name  string `json:"name"`
}

type updateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleHistory returns the recorded samples of one topic. Unknown or missing
// topics yield an empty history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	samples := []telemetry.Sample{}
	if topic := r.URL.Query().Get("topic"); topic != "" && s.cfg.History != nil {
		samples = s.cfg.History.Read(topic)
	}

	s.writeJSON(w, http.StatusOK, historyResponse{History: samples})
}

// handleTopics lists every topic with history, its display name and sample
// count.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	topics := []topicInfo{}
	if s.cfg.History != nil {
		for _, topic := range s.cfg.History.Topics() {
			topics = append(topics, topicInfo{
				Topic:   topic,
				Name:    s.cfg.Names.Display(topic),
				Samples: s.cfg.History.Len(topic),
			})
		}
	}

	s.writeJSON(w, http.StatusOK, topics)
}

// handleNames returns all display names on GET and updates one on POST.
func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.cfg.Names.All())
	case http.MethodPost:
		s.handleUpdateName(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpdateName assigns a display name. The response always carries a
// success flag; an empty topic or a persistence failure reports false.
func (s *Server) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req nameUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, updateResponse{Error: "invalid JSON body"})
		return
	}

	if err := s.cfg.Names.Set(req.Topic, req.Name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, names.ErrEmptyTopic) {
			status = http.StatusOK
		} else {
			s.logger.Error("failed to persist name", "topic", req.Topic, "error", err)
		}
		s.writeJSON(w, status, updateResponse{Error: err.Error()})
		return
	}

	s.logger.Info("display name updated", "topic", req.Topic, "name", req.Name)
	s.writeJSON(w, http.StatusOK, updateResponse{Success: true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
