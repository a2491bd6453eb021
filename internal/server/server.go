// Package server exposes a composition session over a JSON HTTP API and
// streams live spectrum data over a WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/export"
	"github.com/linuxmatters/jivecanvas/internal/imagesearch"
	"github.com/linuxmatters/jivecanvas/internal/renderer"
	"github.com/linuxmatters/jivecanvas/internal/session"
)

// maxUpload bounds multipart uploads.
const maxUpload = 256 << 20

// Searcher finds background images.
type Searcher interface {
	Search(ctx context.Context, query string, page int) ([]imagesearch.Hit, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithSearcher enables /api/search.
func WithSearcher(searcher Searcher) Option {
	return func(s *Server) { s.searcher = searcher }
}

// Server serves one session.
type Server struct {
	session  *session.Session
	searcher Searcher
	logger   *log.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a server for sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session: sess,
		logger:  log.New(io.Discard),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is meant for a local front end on another port
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/audio", s.handleGetAudio)
	s.mux.HandleFunc("POST /api/audio", s.handlePostAudio)
	s.mux.HandleFunc("DELETE /api/audio", s.handleDeleteAudio)
	s.mux.HandleFunc("GET /api/image", s.handleGetImage)
	s.mux.HandleFunc("POST /api/image", s.handlePostImage)
	s.mux.HandleFunc("DELETE /api/image", s.handleDeleteImage)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("POST /api/export", s.handlePostExport)
	s.mux.HandleFunc("GET /api/export", s.handleGetExport)
	s.mux.HandleFunc("GET /api/export/download", s.handleDownload)
	s.mux.HandleFunc("GET /api/preview.png", s.handlePreview)
	s.mux.HandleFunc("GET /ws/spectrum", s.handleSpectrum)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type audioResponse struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Bytes      int       `json:"bytes"`
	Ready      bool      `json:"ready"`
	DurationMS int64     `json:"duration_ms"`
	PositionMS int64     `json:"position_ms"`
	Error      string    `json:"error,omitempty"`
	Peaks      []float64 `json:"peaks,omitempty"`
}

func (s *Server) audioStatus(peaks int) audioResponse {
	a := s.session.Audio()
	if a == nil {
		return audioResponse{}
	}
	pos, dur := s.session.Position()
	resp := audioResponse{
		Name:       a.Name,
		Type:       a.Type,
		Bytes:      len(a.Data),
		Ready:      dur > 0,
		DurationMS: dur.Milliseconds(),
		PositionMS: pos.Milliseconds(),
	}
	if err := s.session.AudioError(); err != nil {
		resp.Error = err.Error()
	}
	if peaks > 0 {
		resp.Peaks = s.session.Peaks(peaks)
	}
	return resp
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	if s.session.Audio() == nil {
		writeError(w, http.StatusNotFound, "no audio selected")
		return
	}
	peaks, _ := strconv.Atoi(r.URL.Query().Get("peaks"))
	writeJSON(w, http.StatusOK, s.audioStatus(min(max(peaks, 0), 4096)))
}

func (s *Server) handlePostAudio(w http.ResponseWriter, r *http.Request) {
	name, mimeType, data, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = audio.TypeFromName(name)
	}

	err = s.session.SetAudio(&audio.Asset{Name: name, Type: mimeType, Data: data})
	switch {
	case errors.Is(err, audio.ErrValidation):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, s.audioStatus(0))
	}
}

func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	s.session.ClearAudio()
	w.WriteHeader(http.StatusNoContent)
}

type imageResponse struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Ref   string `json:"ref"`
	Local bool   `json:"local"`
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	img := s.session.Image()
	if img == nil {
		writeError(w, http.StatusNotFound, "no image selected")
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Name: img.Name, Type: img.MIMEType, Ref: img.Ref, Local: img.Local})
}

func (s *Server) handlePostImage(w http.ResponseWriter, r *http.Request) {
	var err error
	if u := r.URL.Query().Get("url"); u != "" {
		err = s.session.SetRemoteImage(u)
	} else {
		name, mimeType, data, uerr := readUpload(w, r)
		if uerr != nil {
			writeError(w, http.StatusBadRequest, uerr.Error())
			return
		}
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = mime.TypeByExtension(filepath.Ext(name))
		}
		err = s.session.SetLocalImage(name, mimeType, data)
	}

	switch {
	case errors.Is(err, session.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.handleGetImage(w, r)
	}
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	s.session.ClearImage()
	w.WriteHeader(http.StatusNoContent)
}

// readUpload returns the multipart "file" field.
func readUpload(w http.ResponseWriter, r *http.Request) (name, mimeType string, data []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, fmt.Errorf("multipart field \"file\" required: %w", err)
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", "", nil, fmt.Errorf("read upload: %w", err)
	}
	mimeType, _, _ = mime.ParseMediaType(header.Header.Get("Content-Type"))
	return header.Filename, mimeType, data, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "image search is not configured")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	hits, err := s.searcher.Search(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		s.logger.Warn("image search failed", "err", err)
		writeError(w, http.StatusBadGateway, "image search failed")
		return
	}
	if hits == nil {
		hits = []imagesearch.Hit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

type settingsBody struct {
	Text     string `json:"text"`
	Position string `json:"position"`
	Color    string `json:"color"`
	Size     string `json:"size"`
	Style    string `json:"style"`
}

func settingsFrom(p renderer.Params) settingsBody {
	return settingsBody{
		Text:     p.Overlay.Text,
		Position: p.Overlay.Position,
		Color:    p.Overlay.Color,
		Size:     p.Overlay.Size,
		Style:    p.Style.String(),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsFrom(s.session.Params()))
}

// handlePutSettings merges the body over the current settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body := settingsFrom(s.session.Params())
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}

	err := s.session.SetParams(renderer.Params{
		Style: renderer.Style(body.Style),
		Overlay: renderer.Overlay{
			Text:     body.Text,
			Position: body.Position,
			Color:    body.Color,
			Size:     body.Size,
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settingsFrom(s.session.Params()))
}

type jobResponse struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	File     string `json:"file,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
	Error    string `json:"error,omitempty"`
}

func jobStatus(job *session.ExportJob) jobResponse {
	resp := jobResponse{
		ID:       job.ID,
		State:    string(job.State()),
		Progress: job.Progress(),
	}
	art, err := job.Result()
	if art != nil {
		resp.File, resp.Bytes = art.Name, art.Size()
	}
	if err != nil {
		resp.Error = session.FailureMessage
	}
	return resp
}

func (s *Server) handlePostExport(w http.ResponseWriter, r *http.Request) {
	// The job outlives this request
	job, err := s.session.RequestExport(context.Background(), nil)
	switch {
	case errors.Is(err, session.ErrMissingAssets):
		writeError(w, http.StatusBadRequest, session.ExportHint)
	case errors.Is(err, session.ErrExportInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, jobStatus(job))
	}
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	job := s.session.Job()
	if job == nil {
		writeError(w, http.StatusNotFound, "no export has been requested")
		return
	}
	writeJSON(w, http.StatusOK, jobStatus(job))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job := s.session.Job()
	if job == nil {
		writeError(w, http.StatusNotFound, "no export has been requested")
		return
	}
	if job.State() != session.JobSucceeded {
		writeError(w, http.StatusConflict, "export is "+string(job.State()))
		return
	}

	art, _ := job.Result()
	w.Header().Set("Content-Type", art.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(art.Size()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Name}))
	if err := export.Download(s.session.Registry(), art, w); err != nil {
		s.logger.Warn("download interrupted", "file", art.Name, "err", err)
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	frame, err := s.session.Renderer().Frame()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := renderer.EncodePNG(w, frame); err != nil {
		s.logger.Warn("preview encode failed", "err", err)
	}
}
