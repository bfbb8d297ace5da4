// Package httpapi exposes the interpreter probe and the layout service over
// HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"plantgrid/internal/blob"
	"plantgrid/internal/layout"
	"plantgrid/internal/process"
	"plantgrid/pkg/plant"
)

const (
	layoutsPath = "/api/v1/layouts"
	// maxBodyBytes bounds layout request bodies.
	maxBodyBytes = 8 << 20
	// defaultURLTTL applies when ?ttl is absent on signed artifact links.
	defaultURLTTL = 15 * time.Minute
)

// LayoutService runs and reads back layout runs.
type LayoutService interface {
	Run(ctx context.Context, req layout.Request) (layout.Run, error)
	Submit(ctx context.Context, req layout.Request) (layout.Run, error)
	Get(ctx context.Context, id string) (layout.Run, error)
	List(ctx context.Context) ([]layout.Run, error)
	OpenArtifact(ctx context.Context, id, name string) (layout.Artifact, io.ReadCloser, error)
	ArtifactURL(ctx context.Context, id, name string, ttl time.Duration) (string, error)
}

// VersionChecker reports the interpreter version.
type VersionChecker interface {
	Check() (process.VersionReport, error)
}

// Handler routes the plantgrid HTTP API.
type Handler struct {
	Layouts LayoutService
	Version VersionChecker
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// LayoutRequest is the body of POST /api/v1/layouts.
type LayoutRequest struct {
	Width  float64        `json:"width"`
	Height float64        `json:"height"`
	Cell   float64        `json:"cell,omitempty"`
	Plants []plant.Record `json:"plants"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/python-version":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleVersion(w)
	case path == "/healthz":
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case path == "/metrics" && h.Metrics != nil:
		h.Metrics.ServeHTTP(w, r)
	case path == layoutsPath:
		h.handleLayouts(w, r)
	case strings.HasPrefix(path, layoutsPath+"/"):
		h.handleLayout(w, r, strings.TrimPrefix(path, layoutsPath+"/"))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleVersion(w http.ResponseWriter) {
	if h.Version == nil {
		writeError(w, http.StatusInternalServerError, "version probe not configured")
		return
	}
	report, err := h.Version.Check()
	if err != nil {
		h.Logger.Warn().Err(err).Msg("interpreter version check failed")
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleLayouts(w http.ResponseWriter, r *http.Request) {
	if h.Layouts == nil {
		writeError(w, http.StatusInternalServerError, "layout service not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		runs, err := h.Layouts.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []layout.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body LayoutRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Width <= 0 || body.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	if body.Cell < 0 {
		writeError(w, http.StatusBadRequest, "cell must not be negative")
		return
	}
	req := layout.Request{
		Records: body.Plants,
		Params:  process.Params{Width: body.Width, Height: body.Height, Cell: body.Cell},
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		run, err := h.Layouts.Submit(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Location", layoutsPath+"/"+run.ID)
		writeJSON(w, http.StatusAccepted, map[string]any{"run": run})
		return
	}

	run, err := h.Layouts.Run(r.Context(), req)
	switch {
	case err == nil:
		w.Header().Set("Location", layoutsPath+"/"+run.ID)
		writeJSON(w, http.StatusCreated, map[string]any{"run": run})
	case run.ID == "":
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		// the run was recorded; the tool, its launch or the serializer failed
		writeJSON(w, http.StatusBadGateway, map[string]any{"run": run, "error": err.Error()})
	}
}

func (h *Handler) handleLayout(w http.ResponseWriter, r *http.Request, remainder string) {
	if h.Layouts == nil {
		writeError(w, http.StatusInternalServerError, "layout service not configured")
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	segments := strings.Split(remainder, "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		run, err := h.Layouts.Get(r.Context(), segments[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run})
	case len(segments) == 3 && segments[1] == "artifacts" && segments[2] != "":
		h.handleArtifact(w, r, segments[0], segments[2])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request, id, name string) {
	if signed, _ := strconv.ParseBool(r.URL.Query().Get("signed")); signed {
		ttl := defaultURLTTL
		if raw := r.URL.Query().Get("ttl"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "invalid ttl")
				return
			}
			ttl = d
		}
		u, err := h.Layouts.ArtifactURL(r.Context(), id, name, ttl)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": u, "expires_in": ttl.String()})
		return
	}

	a, rc, err := h.Layouts.OpenArtifact(r.Context(), id, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()
	if a.ContentType != "" {
		w.Header().Set("Content-Type", a.ContentType)
	}
	if a.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn().Err(err).Str("run_id", id).Str("artifact", name).Msg("stream artifact")
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, layout.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, blob.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
