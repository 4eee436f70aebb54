// Package telemetry exposes the scope state over HTTP for remote
// dashboards: frequency and peak history, a live SSE stream, and the
// current waterfall grid.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Sample captures one spectrum update for visualization.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	FreqMHz   float64   `json:"freqMHz"`
	Peak      float64   `json:"peak"`
}

// Grid is the waterfall state served to dashboards, newest row first.
type Grid struct {
	FreqMHz float64     `json:"freqMHz"`
	SpanKHz int         `json:"spanKHz"`
	Rows    [][]float64 `json:"rows"`
}

// GridFunc supplies the current waterfall grid on demand.
type GridFunc func() Grid

// RecorderStatus mirrors the recorder state for the status endpoint.
type RecorderStatus struct {
	Phase string `json:"phase"`
	Path  string `json:"path,omitempty"`
	Rows  int    `json:"rows"`
	Files int    `json:"files"`
}

// StatusFunc supplies the current recorder status on demand.
type StatusFunc func() RecorderStatus

const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 10_000
)

// Hub collects history and fans out spectrum updates to subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Sample
	historyLimit int
	subscribers  map[chan Sample]struct{}

	grid   GridFunc
	status StatusFunc
}

// NewHub builds a hub. grid and status may be nil; the matching
// endpoints then serve empty values.
func NewHub(historyLimit int, grid GridFunc, status StatusFunc) *Hub {
	if historyLimit <= 0 || historyLimit > maxHistoryLimit {
		historyLimit = defaultHistoryLimit
	}
	return &Hub{
		historyLimit: historyLimit,
		subscribers:  make(map[chan Sample]struct{}),
		grid:         grid,
		status:       status,
	}
}

// Report records a spectrum update and notifies subscribers. Slow
// subscribers miss samples rather than blocking the producer.
func (h *Hub) Report(freqMHz, peak float64) {
	sample := Sample{Timestamp: time.Now(), FreqMHz: freqMHz, Peak: peak}

	h.mu.Lock()
	h.history = append(h.history, sample)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// History returns a copy of the stored samples.
func (h *Hub) History() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.history))
	copy(out, h.history)
	return out
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Sample, func()) {
	ch := make(chan Sample, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.History())
}

func (h *Hub) handleWaterfall(w http.ResponseWriter, _ *http.Request) {
	var grid Grid
	if h.grid != nil {
		grid = h.grid()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(grid)
}

func (h *Hub) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var st RecorderStatus
	if h.status != nil {
		st = h.status()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, sample := range h.History() {
		writeEvent(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, sample Sample) {
	payload, _ := json.Marshal(sample)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
