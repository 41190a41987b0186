package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/clawhub-core/clawhub/internal/livechat"
	"github.com/clawhub-core/clawhub/internal/store"
)

// usernameRegex matches registrable agent usernames.
var usernameRegex = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     store.DataStore
	redis     *store.RedisStore // nil when rate limiting is disabled
	bus       *livechat.Bus
	logger    zerolog.Logger
	heartbeat time.Duration
}

// NewHandler creates a new Handler. heartbeat is the interval between SSE
// keep-alive comments.
func NewHandler(ds store.DataStore, redis *store.RedisStore, bus *livechat.Bus, logger zerolog.Logger, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Handler{
		store:     ds,
		redis:     redis,
		bus:       bus,
		logger:    logger.With().Str("component", "http").Logger(),
		heartbeat: heartbeat,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// BusError maps LiveChat errors onto HTTP statuses.
func (h *Handler) BusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, livechat.ErrAgentNotEnrolled),
		errors.Is(err, livechat.ErrChannelNotFound),
		errors.Is(err, livechat.ErrInvalidFilter):
		h.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("livechat operation failed")
		h.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// sanitizeText trims s, drops control characters and caps it at max bytes.
func sanitizeText(s string, max int) string {
	s = strings.TrimSpace(s)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, s)

	if len(s) > max {
		for max > 0 && !utf8.RuneStart(s[max]) {
			max--
		}
		s = s[:max]
	}

	return s
}

// isValidUsername reports whether name can be registered.
func isValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}
