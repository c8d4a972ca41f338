package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/ytconvert/internal/report"
	"github.com/psantana5/ytconvert/pkg/engine"
	"github.com/psantana5/ytconvert/pkg/logging"
	"github.com/psantana5/ytconvert/pkg/metrics"
	"github.com/psantana5/ytconvert/pkg/models"
	"github.com/psantana5/ytconvert/pkg/probe"
	"github.com/psantana5/ytconvert/pkg/ratelimit"
	"github.com/psantana5/ytconvert/pkg/store"
	"github.com/psantana5/ytconvert/pkg/tracing"
	"github.com/psantana5/ytconvert/pkg/wrapper"
)

// DefaultMaxBodyBytes caps the JSON request body
const DefaultMaxBodyBytes = 1 << 20

// Config wires a Handler's collaborators
type Config struct {
	Engine  engine.Engine
	Prober  *probe.Prober
	Spawner wrapper.Spawner
	Store   store.Store
	Metrics *metrics.Metrics
	Logger  *logging.Logger

	// StrictQuality rejects quality hints outside the offered options
	StrictQuality bool
	MaxBodyBytes  int64
	TailLines     int
	ChunkSize     int
}

// Handler serves the conversion API
type Handler struct {
	engine        engine.Engine
	prober        *probe.Prober
	spawner       wrapper.Spawner
	store         store.Store
	metrics       *metrics.Metrics
	logger        *logging.Logger
	tracer        trace.Tracer
	framer        *Framer
	strictQuality bool
	maxBodyBytes  int64
	tailLines     int
	startedAt     time.Time
}

// NewHandler creates a handler. Nil Store and Metrics are allowed.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Prober == nil {
		opts := probe.DefaultOptions()
		opts.Logger = logger
		cfg.Prober = probe.New(cfg.Spawner, cfg.Engine, opts)
	}
	return &Handler{
		engine:        cfg.Engine,
		prober:        cfg.Prober,
		spawner:       cfg.Spawner,
		store:         cfg.Store,
		metrics:       cfg.Metrics,
		logger:        logger.WithField("component", "api"),
		tracer:        otel.Tracer("github.com/psantana5/ytconvert/pkg/api"),
		framer:        &Framer{ChunkSize: cfg.ChunkSize},
		strictQuality: cfg.StrictQuality,
		maxBodyBytes:  cfg.MaxBodyBytes,
		tailLines:     cfg.TailLines,
		startedAt:     time.Now(),
	}
}

// RegisterRoutes registers all API routes. limit wraps the routes that
// spawn processes; pass nil for no rate limiting.
func (h *Handler) RegisterRoutes(r *mux.Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.Handle("/api/convert", limit(http.HandlerFunc(h.Convert))).Methods("POST")
	r.Handle("/api/info", limit(http.HandlerFunc(h.Info))).Methods("GET")
	r.HandleFunc("/api/qualities", h.Qualities).Methods("GET")
	r.HandleFunc("/api/history", h.ListHistory).Methods("GET")
	r.HandleFunc("/api/history/{id}", h.GetHistory).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// Convert validates the request, resolves the title and arguments, runs
// one conversion process and streams its output as an attachment
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	logger := h.logger.WithField("request_id", requestID)

	var body models.ConversionRequestBody
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.metrics.ConversionRejected("", metrics.OutcomeInvalid)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// reaching body EOF lets the server notice a client disconnect
	io.Copy(io.Discard, r.Body)

	req, err := models.ParseConversionRequest(body)
	if err == nil && h.strictQuality && req.HasQuality() && !models.IsKnownQuality(req.Kind, req.Quality) {
		err = &models.ValidationError{Field: "quality", Reason: "is not an offered option for " + string(req.Kind)}
	}
	if err != nil {
		h.metrics.ConversionRejected(body.Format, metrics.OutcomeInvalid)
		logger.Info("rejected conversion request", logging.Fields{"error": err})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := h.tracer.Start(ctx, "convert", trace.WithAttributes(
		attribute.String("convert.source", req.Source),
		attribute.String("convert.format", string(req.Kind)),
		attribute.String("convert.quality", req.Quality),
	))
	defer span.End()

	title := h.prober.Title(ctx, req.Source)
	h.metrics.ProbeResult(title != models.DefaultTitle)

	job := h.engine.Resolve(req, title)
	fileName := job.FileName(req.Kind)
	logger.Info("starting conversion", logging.Fields{
		"source":   req.Source,
		"format":   req.Kind,
		"quality":  req.Quality,
		"title":    job.DisplayTitle,
		"selector": job.Selector,
	})

	rec := &models.ConversionRecord{
		ID:        requestID,
		Source:    req.Source,
		Format:    req.Kind,
		Quality:   req.Quality,
		Title:     job.DisplayTitle,
		FileName:  fileName,
		ClientIP:  ratelimit.IPKeyFunc(r),
		CreatedAt: time.Now(),
	}

	session, err := wrapper.Start(ctx, h.spawner, h.engine.Binary(), job.Args, wrapper.Options{
		ID:        requestID,
		Logger:    logger,
		TailLines: h.tailLines,
	})
	if err != nil {
		tracing.SetError(ctx, err)
		h.metrics.ConversionRejected(string(req.Kind), metrics.OutcomeSpawnError)
		rec.State = models.SessionFailed
		rec.ExitCode = -1
		rec.Error = err.Error()
		h.saveRecord(rec, nil)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to start conversion", err.Error())
		return
	}
	defer session.Close()

	h.metrics.ConversionStarted()
	written, streamErr := h.framer.Stream(w, session, req.Kind, fileName)
	session.Close()
	result := session.Result()

	outcome := metrics.OutcomeCompleted
	switch {
	case streamErr == nil:
		tracing.AddEvent(ctx, "stream.completed", attribute.Int64("bytes", written))
	case ctx.Err() != nil || IsPhase(streamErr, PhaseClientWrite):
		outcome = metrics.OutcomeCanceled
		logger.Info("client went away, conversion killed", logging.Fields{"bytes": written})
	case IsPhase(streamErr, PhasePreBody):
		outcome = metrics.OutcomePreBody
	default:
		outcome = metrics.OutcomeFailed
	}
	if streamErr != nil {
		tracing.SetError(ctx, streamErr)
		rec.Error = errorDetails(streamErr)
	}

	h.metrics.ConversionFinished(string(req.Kind), outcome, result)
	h.saveRecord(rec, result)

	switch outcome {
	case metrics.OutcomePreBody:
		logger.Error("conversion failed before output", logging.Fields{"error": streamErr})
		writeErrorDetails(w, http.StatusInternalServerError, "Conversion failed", errorDetails(streamErr))
	case metrics.OutcomeFailed:
		fields := logging.Fields{"error": streamErr, "bytes": written}
		var upErr *wrapper.UpstreamError
		if errors.As(streamErr, &upErr) {
			fields["exit_code"] = upErr.ExitCode
			fields["exit_reason"] = upErr.Reason
		}
		logger.Error("conversion failed mid-stream, aborting response", fields)
		// the status line is gone; only a broken chunked body tells the client
		panic(http.ErrAbortHandler)
	}
}

// Info returns metadata for ?url= without converting anything
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	src := r.URL.Query().Get("url")
	if src == "" {
		writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}

	info, err := h.prober.Probe(r.Context(), src)
	h.metrics.ProbeResult(err == nil)
	if err != nil {
		writeErrorDetails(w, http.StatusBadGateway, "Metadata lookup failed", errorDetails(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            info.ID,
		"title":         info.Title,
		"file_name":     models.SanitizeFileName(info.Title),
		"duration":      info.Duration,
		"uploader":      info.Uploader,
		"thumbnail":     info.Thumbnail,
		"webpage_url":   info.WebpageURL,
		"format_count":  len(info.Formats),
		"audio_formats": info.AudioFormatCount(),
		"max_height":    info.MaxHeight(),
	})
}

// Qualities lists the quality options for ?format=, or for every format
func (h *Handler) Qualities(w http.ResponseWriter, r *http.Request) {
	if f := r.URL.Query().Get("format"); f != "" {
		kind, ok := models.ParseOutputKind(f)
		if !ok {
			writeError(w, http.StatusBadRequest, "format must be mp3 or mp4")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"format":  kind,
			"options": models.QualityOptions(kind),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		string(models.OutputAudio): models.QualityOptions(models.OutputAudio),
		string(models.OutputVideo): models.QualityOptions(models.OutputVideo),
	})
}

// ListHistory returns recent conversions, newest first
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"conversions": []*models.ConversionRecord{}, "count": 0})
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.store.ListConversions(limit)
	if err != nil {
		h.logger.Error("failed to list history", logging.Fields{"error": err})
		writeError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	if records == nil {
		records = []*models.ConversionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversions": records,
		"count":       len(records),
	})
}

// GetHistory returns one conversion record
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Conversion not found")
		return
	}
	rec, err := h.store.GetConversion(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversion not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get conversion")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Health reports engine availability and host load. 503 when the engine
// binary cannot be found.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	engineInfo := map[string]interface{}{
		"name":   h.engine.Name(),
		"binary": h.engine.Binary(),
	}
	if path, err := exec.LookPath(h.engine.Binary()); err != nil {
		engineInfo["available"] = false
		engineInfo["error"] = err.Error()
		status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		engineInfo["available"] = true
		engineInfo["path"] = path
	}

	resp := map[string]interface{}{
		"status":             status,
		"engine":             engineInfo,
		"sessions_in_flight": report.Global().InFlight(),
		"uptime_seconds":     int64(time.Since(h.startedAt).Seconds()),
	}

	host := map[string]interface{}{}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		host["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		host["memory_used_percent"] = vm.UsedPercent
		host["memory_available_bytes"] = vm.Available
	}
	resp["host"] = host

	if h.store != nil {
		if err := h.store.HealthCheck(); err != nil {
			resp["history"] = "unavailable: " + err.Error()
		} else {
			resp["history"] = "ok"
		}
	}

	writeJSON(w, code, resp)
}

// saveRecord fills the outcome fields from result and writes the record.
// History is best-effort and never affects the response.
func (h *Handler) saveRecord(rec *models.ConversionRecord, result *report.Result) {
	if h.store == nil {
		return
	}
	rec.CompletedAt = time.Now()
	if result != nil {
		rec.State = models.SessionState(result.State)
		rec.ExitCode = result.ExitCode
		rec.ExitReason = result.ExitReason
		rec.Bytes = result.BytesRelayed
		rec.DurationMs = result.Duration.Milliseconds()
	}
	if err := h.store.SaveConversion(rec); err != nil {
		h.logger.Warn("failed to save history record", logging.Fields{"id": rec.ID, "error": err})
	}
}

// errorDetails extracts the most useful diagnostic text from err
func errorDetails(err error) string {
	var upErr *wrapper.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Details()
	}
	var probeErr *probe.Error
	if errors.As(err, &probeErr) && probeErr.Stderr != "" {
		return probeErr.Stderr
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, map[string]string{"error": msg, "details": details})
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the id set by RequestIDMiddleware, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
