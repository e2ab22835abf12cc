package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/maxpert/padhook/publisher"
	"github.com/maxpert/padhook/tracker"
	"github.com/rs/zerolog/log"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Tracker is the part of the tracker the admin endpoints use
type Tracker interface {
	Stats() tracker.Stats
	Flush()
	SettingsLoaded() bool
}

// DeliveryJournal lists recent delivery attempts
type DeliveryJournal interface {
	Recent(limit int) ([]publisher.DeliveryRecord, error)
}

// AdminHandlers serves operator endpoints
type AdminHandlers struct {
	tracker Tracker
	journal DeliveryJournal
}

// NewAdminHandlers creates handlers. journal may be nil when disabled.
func NewAdminHandlers(t Tracker, journal DeliveryJournal) *AdminHandlers {
	return &AdminHandlers{tracker: t, journal: journal}
}

// HandleHealth reports liveness and whether webhook settings are loaded
func (h *AdminHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"settings_loaded": h.tracker.SettingsLoaded(),
	})
}

func (h *AdminHandlers) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Stats())
}

func (h *AdminHandlers) handleFlush(w http.ResponseWriter, r *http.Request) {
	stats := h.tracker.Stats()
	h.tracker.Flush()
	log.Info().Int("records", stats.Records).Msg("Flush requested via admin")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"flushed": stats.BurstPending,
		"records": stats.Records,
	})
}

func (h *AdminHandlers) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeErrorResponse(w, http.StatusNotFound, "delivery journal is disabled")
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.journal.Recent(limit)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]deliveryView, 0, len(records))
	for _, rec := range records {
		out = append(out, newDeliveryView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

// deliveryView adds a readable timestamp to a journal entry
type deliveryView struct {
	publisher.DeliveryRecord
	AttemptedAtISO string `json:"attempted_at_iso"`
}

func newDeliveryView(rec publisher.DeliveryRecord) deliveryView {
	return deliveryView{
		DeliveryRecord: rec,
		AttemptedAtISO: formatTimestamp(rec.AttemptedAt),
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}

	if limit > maxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", maxLimit)
	}

	return limit, nil
}

// formatTimestamp converts unix milliseconds to RFC 3339
func formatTimestamp(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339Nano)
}
