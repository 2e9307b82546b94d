package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/pkg/datastorage/models"
	"github.com/argoplatform/argonaut/pkg/datastorage/validation"
)

func TestJobRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "JobRepository Suite")
}

var _ = Describe("JobRepository", func() {
	var (
		repo   *JobRepository
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		ctx    context.Context
		logger *zap.Logger
		jobID  uuid.UUID
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).ToNot(HaveOccurred())

		logger = zap.NewNop()
		repo = NewJobRepository(logger)
		ctx = context.Background()
		jobID = uuid.New()
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("Create", func() {
		It("inserts a pending job and returns it with timestamps", func() {
			now := time.Now()
			mock.ExpectQuery(`INSERT INTO ingestion_jobs`).
				WithArgs(sqlmock.AnyArg(), "s3://bucket/float.nc", models.JobStatusPending).
				WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

			job, err := repo.Create(ctx, mockDB, "s3://bucket/float.nc")

			Expect(err).ToNot(HaveOccurred())
			Expect(job.Status).To(Equal(models.JobStatusPending))
			Expect(job.ObjectStoreKey).To(Equal("s3://bucket/float.nc"))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("MarkRunning", func() {
		It("succeeds when exactly one pending job matches", func() {
			mock.ExpectExec(`UPDATE ingestion_jobs SET status`).
				WithArgs(jobID, models.JobStatusRunning, models.JobStatusPending).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.MarkRunning(ctx, mockDB, jobID)

			Expect(err).ToNot(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("returns not-found when no pending job matches (already claimed)", func() {
			mock.ExpectExec(`UPDATE ingestion_jobs SET status`).
				WithArgs(jobID, models.JobStatusRunning, models.JobStatusPending).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.MarkRunning(ctx, mockDB, jobID)

			Expect(err).To(HaveOccurred())
			problem, ok := err.(*validation.RFC7807Problem)
			Expect(ok).To(BeTrue())
			Expect(problem.Status).To(Equal(404))
		})
	})

	Describe("MarkFailed", func() {
		It("records the error log and increments retry_count", func() {
			mock.ExpectExec(`UPDATE ingestion_jobs SET status`).
				WithArgs(jobID, models.JobStatusFailed, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.MarkFailed(ctx, mockDB, jobID, "object store timeout")

			Expect(err).ToNot(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("GetByID", func() {
		It("maps a conflict-style constraint violation to an RFC 7807 problem", func() {
			mock.ExpectQuery(`SELECT id, object_store_key`).
				WithArgs(jobID).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ingestion_jobs_pkey"})

			_, err := repo.GetByID(ctx, mockDB, jobID)

			Expect(err).To(HaveOccurred())
			_, ok := err.(*validation.RFC7807Problem)
			Expect(ok).To(BeTrue())
		})

		It("returns a not-found problem when no row exists", func() {
			mock.ExpectQuery(`SELECT id, object_store_key`).
				WithArgs(jobID).
				WillReturnError(sql.ErrNoRows)

			_, err := repo.GetByID(ctx, mockDB, jobID)

			Expect(err).To(HaveOccurred())
			problem, ok := err.(*validation.RFC7807Problem)
			Expect(ok).To(BeTrue())
			Expect(problem.Status).To(Equal(404))
		})
	})

	Describe("List", func() {
		It("lists every job newest-first when no status filter is given", func() {
			now := time.Now()
			mock.ExpectQuery(`SELECT id, object_store_key, status.*FROM ingestion_jobs ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
				WithArgs(20, 0).
				WillReturnRows(sqlmock.NewRows([]string{
					"id", "object_store_key", "status", "progress_percent", "profiles_total",
					"profiles_ingested", "error_log", "retry_count", "dataset_id",
					"created_at", "started_at", "finished_at", "updated_at",
				}).AddRow(jobID, "s3://bucket/float.nc", models.JobStatusSucceeded, 100, 10, 10,
					nil, 0, nil, now, now, now, now))

			jobs, err := repo.List(ctx, mockDB, "", 20, 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(models.JobStatusSucceeded))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("filters by status when one is given", func() {
			mock.ExpectQuery(`SELECT id, object_store_key, status.*FROM ingestion_jobs WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
				WithArgs(models.JobStatusFailed, 20, 0).
				WillReturnRows(sqlmock.NewRows([]string{
					"id", "object_store_key", "status", "progress_percent", "profiles_total",
					"profiles_ingested", "error_log", "retry_count", "dataset_id",
					"created_at", "started_at", "finished_at", "updated_at",
				}))

			jobs, err := repo.List(ctx, mockDB, string(models.JobStatusFailed), 20, 0)

			Expect(err).ToNot(HaveOccurred())
			Expect(jobs).To(BeEmpty())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})
})
