package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

func newMock(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewBaseRepository(sqlx.NewDb(raw, "postgres")), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestQRSeedIsIdempotent(t *testing.T) {
	base, mock := newMock(t)
	repo := NewQRRepository(base)

	mock.ExpectExec(q("INSERT INTO qr_codes (qr_id) VALUES ($1) ON CONFLICT (qr_id) DO NOTHING")).
		WithArgs("Q1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO qr_codes")).
		WithArgs("Q1").WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Seed(context.Background(), "Q1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Seed(context.Background(), "Q1")
	require.NoError(t, err)
	assert.False(t, created)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQRRecordScan(t *testing.T) {
	base, mock := newMock(t)
	repo := NewQRRepository(base)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE qr_codes SET scan_count = scan_count + 1")).
		WithArgs("Q1").
		WillReturnRows(sqlmock.NewRows([]string{"qr_id", "assigned", "scan_count", "created_at"}).
			AddRow("Q1", true, 4, at))
	mock.ExpectExec(q("INSERT INTO scan_events")).
		WithArgs("Q1", "anonymous", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	qr, err := repo.RecordScan(context.Background(), "Q1", "anonymous", at)
	require.NoError(t, err)
	assert.Equal(t, int64(4), qr.ScanCount)
	assert.Equal(t, model.QRAssigned, qr.Status())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQRRecordScanUnknownToken(t *testing.T) {
	base, mock := newMock(t)
	repo := NewQRRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery(q("UPDATE qr_codes SET scan_count")).
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"qr_id", "assigned", "scan_count", "created_at"}))
	mock.ExpectRollback()

	_, err := repo.RecordScan(context.Background(), "NOPE", "anonymous", time.Now())
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithAssignmentAlreadyAssigned(t *testing.T) {
	base, mock := newMock(t)
	repo := NewPatientRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE qr_codes SET assigned = TRUE WHERE qr_id = $1 AND assigned = FALSE")).
		WithArgs("Q1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM qr_codes WHERE qr_id = $1)")).
		WithArgs("Q1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.CreateWithAssignment(context.Background(), &model.Patient{QRID: "Q1", Username: "alice"}, nil)
	assert.ErrorIs(t, err, apperrors.ConflictErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithAssignmentUnknownToken(t *testing.T) {
	base, mock := newMock(t)
	repo := NewPatientRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE qr_codes SET assigned = TRUE")).
		WithArgs("Q9").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT EXISTS")).
		WithArgs("Q9").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.CreateWithAssignment(context.Background(), &model.Patient{QRID: "Q9"}, nil)
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithAssignmentDuplicateUsernameRollsBack(t *testing.T) {
	base, mock := newMock(t)
	repo := NewPatientRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE qr_codes SET assigned = TRUE")).
		WithArgs("Q2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(q("INSERT INTO patients")).
		ExpectQuery().
		WillReturnError(&pq.Error{Code: "23505", Constraint: "patients_username_key"})
	mock.ExpectRollback()

	err := repo.CreateWithAssignment(context.Background(), &model.Patient{QRID: "Q2", Username: "alice"}, nil)
	require.ErrorIs(t, err, apperrors.ConflictErr)
	assert.Equal(t, "username already used", apperrors.MessageOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithAssignmentInsertsLabs(t *testing.T) {
	base, mock := newMock(t)
	repo := NewPatientRepository(base)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE qr_codes SET assigned = TRUE")).
		WithArgs("Q1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(q("INSERT INTO patients")).
		ExpectQuery().
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(q("INSERT INTO lab_attachments")).
		WithArgs("Q1", nil, model.AttachmentRegistration, "Q1__cbc.pdf", "patient:alice", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	patient := &model.Patient{QRID: "Q1", Username: "alice", Name: "Alice"}
	labs := []*model.LabAttachment{{Kind: model.AttachmentRegistration, FileName: "Q1__cbc.pdf", UploadedBy: "patient:alice"}}

	require.NoError(t, repo.CreateWithAssignment(context.Background(), patient, labs))
	assert.Equal(t, int64(11), patient.ID)
	assert.Equal(t, int64(3), labs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitCreateRollsBackOnAttachmentFailure(t *testing.T) {
	base, mock := newMock(t)
	repo := NewVisitRepository(base)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM patients WHERE qr_id = $1)")).
		WithArgs("Q1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q("INSERT INTO visits")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(q("INSERT INTO lab_attachments")).
		WillReturnError(errors.New("disk quota"))
	mock.ExpectRollback()

	visit := &model.Visit{
		QRID:        "Q1",
		VisitDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		CreatedBy:   "operator:bob",
		Attachments: []*model.LabAttachment{{FileName: "Q1__xray.pdf"}},
	}
	err := repo.Create(context.Background(), visit)
	assert.ErrorIs(t, err, apperrors.StorageErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitListAttachesLabs(t *testing.T) {
	base, mock := newMock(t)
	repo := NewVisitRepository(base)
	d1 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	d0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("ORDER BY visit_date DESC, id DESC")).
		WithArgs("Q1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "qr_id", "visit_date", "diagnosis", "treatment", "medicines", "created_by", "created_at"}).
			AddRow(2, "Q1", d1, "flu", "rest", "", "operator:bob", d1).
			AddRow(1, "Q1", d0, "cold", "tea", "", "doctor:drwho", d0))
	mock.ExpectQuery(q("FROM lab_attachments")).
		WithArgs("Q1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "qr_id", "visit_id", "kind", "file_name", "uploaded_by", "uploaded_at"}).
			AddRow(9, "Q1", 1, "visit", "Q1__a.pdf", "doctor:drwho", d0))

	visits, err := repo.ListByQR(context.Background(), "Q1")
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, "flu", visits[0].Diagnosis)
	assert.Empty(t, visits[0].Attachments)
	require.Len(t, visits[1].Attachments, 1)
	assert.Equal(t, "Q1__a.pdf", visits[1].Attachments[0].FileName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperatorCreateDuplicate(t *testing.T) {
	base, mock := newMock(t)
	repo := NewOperatorRepository(base)

	mock.ExpectQuery(q("INSERT INTO operators")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "operators_username_key"})

	err := repo.Create(context.Background(), &model.Operator{Username: "bob"})
	assert.ErrorIs(t, err, apperrors.ConflictErr)
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "postgres")

	migrations, err := Migrations()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(migrations), 2)

	mock.ExpectExec(q("SELECT pg_advisory_lock($1)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(migrations[0].Version))
	for _, m := range migrations[1:] {
		mock.ExpectBegin()
		mock.ExpectExec(q(m.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("INSERT INTO schema_migrations (version) VALUES ($1)")).
			WithArgs(m.Version).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}
	mock.ExpectExec(q("SELECT pg_advisory_unlock($1)")).WillReturnResult(sqlmock.NewResult(0, 0))

	ran, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Len(t, ran, len(migrations)-1)
	assert.NotContains(t, ran, migrations[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsAreOrdered(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
	assert.Equal(t, "0001_init", migrations[0].Version)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_a\\b`, escapeLike(`100%_a\b`))
}
