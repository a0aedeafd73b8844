package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/video_downloader/internal/downloader"
	"github.com/italolelis/video_downloader/internal/extractor"
	"github.com/italolelis/video_downloader/internal/formats"
	"github.com/italolelis/video_downloader/internal/job"
	"github.com/italolelis/video_downloader/internal/logctx"
	"github.com/italolelis/video_downloader/internal/transcoder"
)

const maxBodySize = 1 << 20 // 1MB

// DownloadService is what the handlers need from the download orchestrator.
type DownloadService interface {
	Start(ctx context.Context, req downloader.Request) (string, error)
	Status(id string) (job.Job, error)
	VideoInfo(ctx context.Context, url string) (downloader.VideoInfoResult, error)
	ActiveDownloads() int
	DownloadDir() string
	ExtractorVersion() string
	Transcoder() *transcoder.Transcoder
}

type HealthResponse struct {
	Status              string  `json:"status"`
	ActiveDownloads     int     `json:"activeDownloads"`
	DownloadDir         string  `json:"downloadDir"`
	ExtractorVersion    string  `json:"extractorVersion"`
	TranscoderAvailable bool    `json:"transcoderAvailable"`
	TranscoderPath      *string `json:"transcoderPath"`
}

type VideoInfoRequest struct {
	URL string `json:"url"`
}

type VideoInfoResponse struct {
	VideoInfo *extractor.VideoInfo `json:"videoInfo"`
	Formats   []formats.Format     `json:"formats"`
}

type DownloadRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"formatId"`
	Quality  string `json:"quality"`
}

type DownloadResponse struct {
	DownloadID string `json:"downloadId"`
	Status     string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	svc DownloadService
}

func NewHandler(svc DownloadService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HandleHealth)
	r.Post("/video-info", h.HandleVideoInfo)
	r.Post("/download", h.HandleDownload)
	r.Get("/download-status/{downloadId}", h.HandleDownloadStatus)

	return r
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	tc := h.svc.Transcoder()

	resp := HealthResponse{
		Status:              "healthy",
		ActiveDownloads:     h.svc.ActiveDownloads(),
		DownloadDir:         h.svc.DownloadDir(),
		ExtractorVersion:    h.svc.ExtractorVersion(),
		TranscoderAvailable: tc.Available(),
	}

	if tc.Available() {
		path := tc.Path()
		resp.TranscoderPath = &path
	}

	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *Handler) HandleVideoInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VideoInfoRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)

		return
	}

	res, err := h.svc.VideoInfo(ctx, req.URL)
	if err != nil {
		writeError(ctx, w, err)

		return
	}

	writeJSON(ctx, w, http.StatusOK, VideoInfoResponse{VideoInfo: res.Info, Formats: res.Formats})
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DownloadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)

		return
	}

	id, err := h.svc.Start(ctx, downloader.Request{URL: req.URL, FormatID: req.FormatID, Quality: req.Quality})
	if err != nil {
		writeError(ctx, w, err)

		return
	}

	writeJSON(ctx, w, http.StatusOK, DownloadResponse{DownloadID: id, Status: "started"})
}

func (h *Handler) HandleDownloadStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.svc.Status(chi.URLParam(r, "downloadId"))
	if err != nil {
		writeError(ctx, w, err)

		return
	}

	writeJSON(ctx, w, http.StatusOK, snap)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &downloader.InvalidRequestError{Field: "body", Reason: "is empty"}
		}

		return &downloader.InvalidRequestError{Field: "body", Reason: "is not valid JSON", Err: err}
	}

	return nil
}

func statusFor(err error) int {
	var (
		invalid *downloader.InvalidRequestError
		missing *downloader.DependencyMissingError
	)

	switch {
	case errors.As(err, &invalid), errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)

	msg := err.Error()
	if errors.Is(err, job.ErrNotFound) {
		msg = "download not found"
	}

	if status >= http.StatusInternalServerError {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "request failed", "err", err)
	}

	writeJSON(ctx, w, status, ErrorResponse{Error: msg})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}
