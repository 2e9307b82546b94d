/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httpapi is the ingestion service's HTTP ingress: it accepts
// a multipart upload, stages the raw bytes to the object store, opens
// an ingestion_jobs row and dispatches it to the orchestrator over the
// broker, all within a fixed latency budget — the actual parse/clean/
// write work happens later, off the request path, inside
// pkg/ingestion/orchestrator. It also exposes job status, listing and
// retry.
package httpapi

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/repository"
	"github.com/argoplatform/argonaut/pkg/ingestion/broker"
	"github.com/argoplatform/argonaut/pkg/ingestion/objectstore"
	"github.com/argoplatform/argonaut/pkg/shared/apierror"
	"github.com/argoplatform/argonaut/pkg/shared/httpmiddleware"
	"github.com/argoplatform/argonaut/pkg/shared/httpresponse"
)

// allowedExtensions are the file types accepted for upload: the two
// scientific-binary container variants, plus a zip archive of them.
// Zip fan-out (each archive member becoming its own job) is not yet
// implemented — a zip upload is staged and queued as a single job, and
// the orchestrator will fail it as malformed until that fan-out ships.
var allowedExtensions = map[string]bool{
	".nc":  true,
	".nc4": true,
	".zip": true,
}

// WriteDB is the write-role pool every repository call in this package
// goes through — a plain alias, not a narrowed interface, since the
// repository layer itself is written against *sql.DB.
type WriteDB = *sql.DB

// objectStager is the one objectstore.Store method this package calls,
// narrowed to an interface the same way pkg/ai/llm.Client narrows an
// SDK-backed client, so a test can fake object store staging without a
// live S3 endpoint.
type objectStager interface {
	Stage(ctx context.Context, key string, data []byte) error
}

// jobDispatcher is the one broker.Broker method this package calls.
type jobDispatcher interface {
	DispatchJob(ctx context.Context, msg broker.JobMessage) error
}

// Server wires the object store, job repository and broker into a chi
// router for the ingestion service.
type Server struct {
	store  objectStager
	jobs   *repository.JobRepository
	broker jobDispatcher
	cfg    config.ServerConfig
	log    *zap.Logger
}

// New builds a Server from the real *objectstore.Store and
// *broker.Broker collaborators.
func New(store *objectstore.Store, brk *broker.Broker, cfg config.ServerConfig, log *zap.Logger) *Server {
	return &Server{
		store:  store,
		jobs:   repository.NewJobRepository(log),
		broker: brk,
		cfg:    cfg,
		log:    log,
	}
}

// Router builds the chi router exposing this service's full surface.
// db is the write-role pool the job repository reads and writes
// through; it is threaded per-request via context rather than stored
// on Server so the same Server can, in principle, front more than one
// pool.
func (s *Server) Router(db WriteDB) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/v1/datasets/upload", s.withDB(db, s.handleUpload))
	r.Get("/datasets/jobs", s.withDB(db, s.handleListJobs))
	r.Get("/datasets/jobs/{id}", s.withDB(db, s.handleGetJob))
	r.Post("/datasets/jobs/{id}/retry", s.withDB(db, s.handleRetryJob))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpresponse.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, db WriteDB) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.UploadDeadline)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpresponse.Error(w, s.log, apierror.WithDetails(apierror.TypeTooLarge, "upload exceeds the configured size limit", map[string]int64{"max_bytes": s.cfg.MaxUploadBytes}))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpresponse.Error(w, s.log, apierror.New(apierror.TypeValidationFailure, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		httpresponse.Error(w, s.log, apierror.Newf(apierror.TypeUnsupportedFile, "unsupported file extension %q, expected .nc, .nc4 or .zip", ext))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpresponse.Error(w, s.log, apierror.Newf(apierror.TypeMalformedFile, "read upload body: %v", err))
		return
	}

	datasetID := uuid.New()
	key := objectstore.Key(datasetID.String(), header.Filename)
	if err := s.store.Stage(ctx, key, data); err != nil {
		httpresponse.Error(w, s.log, apierror.Newf(apierror.TypeTransientStoreError, "stage upload: %v", err))
		return
	}

	job, err := s.jobs.Create(ctx, db, key)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}

	if err := s.broker.DispatchJob(ctx, broker.JobMessage{JobID: job.ID, ObjectStoreKey: job.ObjectStoreKey}); err != nil {
		s.log.Warn("dispatch job message failed, job stays pending", zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	httpresponse.JSON(w, http.StatusAccepted, uploadResponse{JobID: job.ID, Status: string(job.Status)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, db WriteDB) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpresponse.Error(w, s.log, apierror.New(apierror.TypeValidationFailure, "invalid job id"))
		return
	}
	job, err := s.jobs.GetByID(r.Context(), db, id)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}
	httpresponse.JSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request, db WriteDB) {
	status := r.URL.Query().Get("status")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	jobs, err := s.jobs.List(r.Context(), db, status, limit, offset)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	httpresponse.JSON(w, http.StatusOK, map[string]interface{}{"jobs": out})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request, db WriteDB) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpresponse.Error(w, s.log, apierror.New(apierror.TypeValidationFailure, "invalid job id"))
		return
	}

	job, err := s.jobs.GetByID(r.Context(), db, id)
	if err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}
	if err := s.jobs.Retry(r.Context(), db, id); err != nil {
		httpresponse.Error(w, s.log, err)
		return
	}
	if err := s.broker.DispatchJob(r.Context(), broker.JobMessage{JobID: id, ObjectStoreKey: job.ObjectStoreKey}); err != nil {
		s.log.Warn("dispatch retried job failed, job stays pending", zap.String("job_id", id.String()), zap.Error(err))
	}
	httpresponse.JSON(w, http.StatusAccepted, map[string]string{"job_id": id.String(), "status": string(models.JobStatusPending)})
}

// jobResponse is the wire shape for one ingestion_jobs row.
type jobResponse struct {
	JobID            uuid.UUID  `json:"job_id"`
	ObjectStoreKey   string     `json:"object_store_key"`
	Status           string     `json:"status"`
	ProgressPercent  int        `json:"progress_percent"`
	ProfilesTotal    int        `json:"profiles_total"`
	ProfilesIngested int        `json:"profiles_ingested"`
	ErrorLog         *string    `json:"error_log,omitempty"`
	RetryCount       int        `json:"retry_count"`
	DatasetID        *uuid.UUID `json:"dataset_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toJobResponse(j *models.IngestionJob) jobResponse {
	return jobResponse{
		JobID:            j.ID,
		ObjectStoreKey:   j.ObjectStoreKey,
		Status:           string(j.Status),
		ProgressPercent:  j.ProgressPercent,
		ProfilesTotal:    j.ProfilesTotal,
		ProfilesIngested: j.ProfilesIngested,
		ErrorLog:         j.ErrorLog,
		RetryCount:       j.RetryCount,
		DatasetID:        j.DatasetID,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		FinishedAt:       j.FinishedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// withDB closes over db so every handler keeps the simple
// (http.ResponseWriter, *http.Request) signature chi expects, without
// Server needing to store the pool itself.
func (s *Server) withDB(db WriteDB, handler func(http.ResponseWriter, *http.Request, WriteDB)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler(w, r, db)
	}
}
