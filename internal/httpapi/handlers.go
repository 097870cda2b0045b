// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dlovans/formlogic/internal/store/postgres"
	"github.com/dlovans/formlogic/pkg/formlogic"
	"github.com/dlovans/formlogic/pkg/lint"
)

const maxBodyBytes = 4 << 20

// Source supplies stored forms and responses. *postgres.Store implements it.
type Source interface {
	LoadForm(ctx context.Context, formID int64) (*formlogic.FormDocument, error)
	LoadResponse(ctx context.Context, responseID int64) (*postgres.Response, error)
}

// Handler serves evaluation and lint requests.
type Handler struct {
	engine *formlogic.Engine
	source Source
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler returns a handler. source may be nil, which disables the
// stored-form endpoint.
func NewHandler(engine *formlogic.Engine, source Source, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// EvaluateRequest is the body of POST /v1/evaluate.
type EvaluateRequest struct {
	Form     *formlogic.FormDocument `json:"form"`
	Response json.RawMessage         `json:"response"`
	// Date is the submission time; the current time when empty.
	Date string `json:"date,omitempty"`
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Evaluate evaluates an inline form document and response.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Form == nil {
		h.writeError(w, r, http.StatusBadRequest, "form is required")
		return
	}
	date := h.now()
	if req.Date != "" {
		parsed, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "date must be RFC 3339")
			return
		}
		date = parsed
	}
	if len(req.Response) == 0 {
		req.Response = json.RawMessage(`{}`)
	}

	report, err := h.evaluate(req.Form, req.Response, date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// EvaluateStored evaluates a stored response against its stored form, as of
// the response's submission time.
func (h *Handler) EvaluateStored(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeError(w, r, http.StatusNotFound, "no form store configured")
		return
	}
	vars := mux.Vars(r)
	formID, err1 := strconv.ParseInt(vars["formID"], 10, 64)
	responseID, err2 := strconv.ParseInt(vars["responseID"], 10, 64)
	if err1 != nil || err2 != nil {
		h.writeError(w, r, http.StatusBadRequest, "ids must be integers")
		return
	}

	resp, err := h.source.LoadResponse(r.Context(), responseID)
	if err != nil {
		h.writeSourceError(w, r, err)
		return
	}
	if resp.FormID != formID {
		h.writeError(w, r, http.StatusNotFound, "response does not belong to this form")
		return
	}
	doc, err := h.source.LoadForm(r.Context(), formID)
	if err != nil {
		h.writeSourceError(w, r, err)
		return
	}

	report, err := h.evaluate(doc, resp.Values, resp.CreatedAt)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// Lint analyses a form document (JSON or YAML body).
func (h *Handler) Lint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := lint.Run(body, h.engine.Registry())
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) evaluate(doc *formlogic.FormDocument, response []byte, date time.Time) (*formlogic.Report, error) {
	form, err := h.engine.Compile(doc)
	if err != nil {
		return nil, err
	}
	values, err := formlogic.ParseResponse(response)
	if err != nil {
		return nil, err
	}
	return h.engine.EvaluateAt(form, values, date)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, formlogic.ErrInvalidInput),
		errors.Is(err, formlogic.ErrDuplicateField),
		errors.Is(err, formlogic.ErrNilField),
		errors.Is(err, formlogic.ErrNilFields):
		h.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Str("request_id", requestID(r)).Msg("evaluation failed")
		h.writeError(w, r, http.StatusInternalServerError, "evaluation failed")
	}
}

func (h *Handler) writeSourceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, postgres.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error().Err(err).Str("request_id", requestID(r)).Msg("store lookup failed")
	h.writeError(w, r, http.StatusInternalServerError, "store lookup failed")
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, status, errorBody{Error: msg, RequestID: requestID(r)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write response")
	}
}
