package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/roomsense/occupancy"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		registry := app.Holder.Current()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasModels bool      `json:"hasModels"`
			Models    int       `json:"models"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
		}
		if registry != nil {
			status.HasModels = registry.Len() > 0
			status.Models = registry.Len()
		}
		writeJSON(w, http.StatusOK, status)
	})

	// Training endpoint: accepts a timeslot batch and trains in the
	// background. The caller is only told that training started;
	// per-room outcomes surface through logs and the registry.
	mux.HandleFunc("/train", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rooms, err := decodeRooms(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Detached context: training outlives the triggering request.
		go func() {
			if _, err := app.Train(context.Background(), rooms); err != nil {
				log.Printf("[HTTP] background training failed: %v", err)
				return
			}
			log.Printf("[HTTP] background training finished for %d rooms", len(rooms))
		}()

		log.Printf("[HTTP] training sequence initialized for %d rooms", len(rooms))
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "Training sequence initialized",
		})
	})

	// Prediction endpoint: scores a timeslot batch against the current
	// registry and returns the combined flat table.
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		registry := app.Holder.Current()
		if registry == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"message": "No model available; train first",
			})
			return
		}

		rooms, err := decodeRooms(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := registry.Predict(r.Context(), rooms)
		if err != nil {
			http.Error(w, "Prediction cancelled", http.StatusServiceUnavailable)
			return
		}
		app.rememberScored(report)

		combined := occupancy.CombineFrames(rooms, report.Scored)

		if app.Store != nil {
			runID := newRunID()
			if err := app.Store.PushCombined(r.Context(), runID, combined); err != nil {
				log.Printf("[HTTP] pushing combined output: %v", err)
			}
		}

		writeJSON(w, http.StatusOK, combined)
	})

	// Registry contents
	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		registry := app.Holder.Current()
		rooms := []string{}
		if registry != nil {
			rooms = registry.Rooms()
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms []string `json:"rooms"`
		}{Rooms: rooms})
	})

	// Per-room day-profile plot from the last scored batch
	mux.HandleFunc("/room-plot.png", func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "Missing room parameter", http.StatusBadRequest)
			return
		}
		scored, ok := app.LastScored(room)
		if !ok {
			http.Error(w, "No scored data for room", http.StatusNotFound)
			return
		}

		renderer := occupancy.NewPlotRenderer(app.Config.Plots, app.Config.Heuristics.Night)
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderPNG(w, room, scored); err != nil {
			log.Printf("[HTTP] rendering plot for %s: %v", room, err)
		}
	})

	mux.HandleFunc("/room-plot.svg", func(w http.ResponseWriter, r *http.Request) {
		room := r.URL.Query().Get("room")
		if room == "" {
			http.Error(w, "Missing room parameter", http.StatusBadRequest)
			return
		}
		scored, ok := app.LastScored(room)
		if !ok {
			http.Error(w, "No scored data for room", http.StatusNotFound)
			return
		}

		renderer := occupancy.NewPlotRenderer(app.Config.Plots, app.Config.Heuristics.Night)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderSVG(w, room, scored); err != nil {
			log.Printf("[HTTP] rendering plot for %s: %v", room, err)
		}
	})

	return mux
}

// decodeRooms reads a flat JSON array of timeslot rows from the request
// body and groups it per room.
func decodeRooms(r *http.Request) (map[string][]occupancy.Timeslot, error) {
	var rows []occupancy.Timeslot
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		return nil, err
	}
	return occupancy.GroupByRoom(rows), nil
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
