package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/gaspardpetit/imgrelay/internal/endpoint"
	"github.com/gaspardpetit/imgrelay/internal/logx"
	"github.com/gaspardpetit/imgrelay/internal/relay"
)

// HeaderGenerationID carries the id that tags a generation's log lines.
const HeaderGenerationID = "X-Generation-Id"

const msgTimeout = "Request timeout - generation took too long (>3 min)"

// Relay is the service behind the JSON endpoints.
type Relay interface {
	Generate(ctx context.Context, req relay.GenerateRequest) (*relay.GenerateResult, error)
	CheckHealth(ctx context.Context) relay.HealthStatus
	UpdateBackendURL(ctx context.Context, raw string) (string, error)
	BackendURL(ctx context.Context) string
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type updateResponse struct {
	Success    bool   `json:"success"`
	BackendURL string `json:"backend_url"`
}

// GenerateHandler handles POST /generate.
func GenerateHandler(svc Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(HeaderGenerationID, id)
		ctx := relay.WithGenerationID(r.Context(), id)

		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			logx.Log.Error().Err(err).Str("generation_id", id).Msg("decode generate request")
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("decode request: %v", err))
			return
		}
		if fields == nil {
			writeError(w, http.StatusInternalServerError, "request body must be a JSON object")
			return
		}
		res, err := svc.Generate(ctx, relay.NewGenerateRequest(fields))
		if err != nil {
			writeRelayErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HealthHandler handles GET /health. It always answers 200.
func HealthHandler(svc Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.CheckHealth(r.Context()))
	}
}

// UpdateBackendURLHandler handles POST /update-backend-url.
func UpdateBackendURLHandler(svc Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.UpdateBackendURL(r.Context(), updateURL(r))
		switch {
		case errors.Is(err, endpoint.ErrURLRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			logx.Log.Error().Err(err).Msg("update backend url")
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, updateResponse{Success: true, BackendURL: u})
		}
	}
}

// updateURL returns the "url" string of the request body. An unreadable
// body, a non-string value or a differently cased key yields "".
func updateURL(r *http.Request) string {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		logx.Log.Warn().Err(err).Msg("decode update request")
		return ""
	}
	var u string
	if raw, ok := fields["url"]; ok {
		if err := json.Unmarshal(raw, &u); err != nil {
			logx.Log.Warn().Err(err).Msg("update request url is not a string")
			return ""
		}
	}
	return u
}

func writeRelayErr(w http.ResponseWriter, err error) {
	var (
		be *relay.BackendError
		ue *relay.UnreachableError
	)
	switch {
	case errors.As(err, &be):
		writeError(w, http.StatusInternalServerError, be.Error())
	case errors.Is(err, relay.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, msgTimeout)
	case errors.As(err, &ue):
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf(
			"Cannot connect to Colab backend. Make sure it is running and URL is correct. Current URL: %s", ue.URL))
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode response")
	}
}
