package patient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/internal/repository/memory"
	"github.com/jwalitptl/qrcare/internal/storage"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/metrics"
	"github.com/jwalitptl/qrcare/pkg/security"
)

type recordingMailer struct {
	sent []string
	err  error
}

func (m *recordingMailer) SendWelcome(_ context.Context, to, _, qrID string) error {
	m.sent = append(m.sent, to+"|"+qrID)
	return m.err
}

type fixture struct {
	svc    *Service
	store  *repository.Store
	fs     afero.Fs
	mailer *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	fs := afero.NewMemMapFs()
	files, err := storage.New(fs, "/data", 1<<20)
	require.NoError(t, err)
	mailer := &recordingMailer{}
	svc := NewService(store.Patients, store.Visits, files,
		security.NewBcryptHasher(bcrypt.MinCost, 6), mailer, metrics.NewNop())
	return &fixture{svc: svc, store: store, fs: fs, mailer: mailer}
}

func (f *fixture) seed(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.store.QR.Seed(context.Background(), id)
		require.NoError(t, err)
	}
}

func upload(name, body string) *model.Upload {
	return &model.Upload{Filename: name, Size: int64(len(body)), Content: strings.NewReader(body)}
}

func alice(qr string) *model.Registration {
	return &model.Registration{
		QRID:     qr,
		Username: "alice",
		Password: "secret",
		Name:     "Alice",
		Email:    "alice@example.com",
	}
}

func fileExists(t *testing.T, fs afero.Fs, p string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, p)
	require.NoError(t, err)
	return ok
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()

	p, err := f.svc.Register(ctx, alice("Q1"))
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.NotEqual(t, "secret", p.PasswordHash)
	assert.Equal(t, []string{"alice@example.com|Q1"}, f.mailer.sent)

	qr, err := f.store.QR.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.True(t, qr.Assigned)

	got, err := f.svc.Authenticate(ctx, "Q1", "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = f.svc.Authenticate(ctx, "Q1", "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)

	_, err = f.svc.Authenticate(ctx, "Q1", "mallory", "secret")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)

	_, err = f.svc.Authenticate(ctx, "Q2", "alice", "secret")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)
}

func TestRegisterTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, alice("Q1"))
	require.NoError(t, err)

	second := &model.Registration{QRID: "Q1", Username: "mallory", Password: "secret", Name: "Mallory"}
	_, err = f.svc.Register(ctx, second)
	require.ErrorIs(t, err, apperrors.ConflictErr)
	assert.Equal(t, "QR code already registered", apperrors.MessageOf(err))

	p, err := f.svc.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
}

func TestRegisterNormalizesBloodType(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	f.seed(t, "Q2")
	ctx := context.Background()

	first := alice("Q1")
	first.BloodType = "a+"
	_, err := f.svc.Register(ctx, first)
	require.NoError(t, err)

	second := &model.Registration{QRID: "Q2", Username: "bob", Password: "secret", Name: "Bob", BloodType: " A+ "}
	_, err = f.svc.Register(ctx, second)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "A+", got.BloodType)

	summary, err := f.store.Analytics.Summary(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []model.BloodTypeCount{{Type: "A+", Count: 2}}, summary.BloodTypeDistribution)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, &model.Registration{QRID: "Q1", Username: "alice", Password: "secret"})
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	short := alice("Q1")
	short.Password = "abc"
	_, err = f.svc.Register(ctx, short)
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	badLab := alice("Q1")
	badLab.Labs = []*model.Upload{upload("scan.exe", "x")}
	_, err = f.svc.Register(ctx, badLab)
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	qr, err := f.store.QR.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.False(t, qr.Assigned)
}

func TestRegisterUnknownQR(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), alice("NOPE"))
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
}

func TestRegisterStoresUploads(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()

	reg := alice("Q1")
	reg.Photo = upload("me.png", "png")
	reg.Labs = []*model.Upload{upload("cbc.pdf", "%PDF")}
	p, err := f.svc.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "Q1__me.png", p.PhotoFile)
	assert.True(t, fileExists(t, f.fs, "/data/photos/Q1__me.png"))

	labs, err := f.svc.ListLabs(ctx, "Q1")
	require.NoError(t, err)
	require.Len(t, labs, 1)
	assert.Equal(t, "Q1__cbc.pdf", labs[0].FileName)
	assert.Equal(t, "patient:alice", labs[0].UploadedBy)

	owner, err := f.svc.LabOwner(ctx, "Q1__cbc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Q1", owner)
}

func TestFailedRegistrationRemovesOnlyItsOwnUploads(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1", "Q2")
	ctx := context.Background()

	first := alice("Q1")
	first.Labs = []*model.Upload{upload("cbc.pdf", "first")}
	_, err := f.svc.Register(ctx, first)
	require.NoError(t, err)

	// Same username on another token: the commit fails after the files were written.
	dup := alice("Q2")
	dup.Photo = upload("me.png", "png")
	dup.Labs = []*model.Upload{upload("cbc.pdf", "second")}
	_, err = f.svc.Register(ctx, dup)
	require.ErrorIs(t, err, apperrors.ConflictErr)

	assert.True(t, fileExists(t, f.fs, "/data/labs/Q1__cbc.pdf"))
	assert.False(t, fileExists(t, f.fs, "/data/labs/Q2__cbc.pdf"))
	assert.False(t, fileExists(t, f.fs, "/data/photos/Q2__me.png"))
}

func TestWelcomeMailFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	f.mailer.err = errors.New("smtp down")

	_, err := f.svc.Register(context.Background(), alice("Q1"))
	assert.NoError(t, err)
}

func TestGuestViewHidesPrivateFields(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	f.svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	reg := alice("Q1")
	born := time.Date(1990, 7, 1, 0, 0, 0, 0, time.UTC)
	reg.Birthdate = &born
	reg.ChronicDiseases = "asthma"
	reg.Medications = "salbutamol"
	_, err := f.svc.Register(context.Background(), reg)
	require.NoError(t, err)

	g, err := f.svc.GuestView(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", g.Name)
	assert.Equal(t, "asthma", g.ChronicDiseases)
	require.NotNil(t, g.Age)
	assert.Equal(t, 33, *g.Age)
}

func TestUpdates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()
	_, err := f.svc.Register(ctx, alice("Q1"))
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateClinical(ctx, "Q1", model.ClinicalUpdate{ChronicDiseases: "diabetes", Medications: "metformin"}))
	require.NoError(t, f.svc.UpdateContact(ctx, "Q1", model.ContactUpdate{Phone: "555-1"}))

	p, err := f.svc.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "diabetes", p.ChronicDiseases)
	assert.Equal(t, "metformin", p.Medications)
	assert.Equal(t, "555-1", p.Phone)

	assert.ErrorIs(t, f.svc.UpdateClinical(ctx, "Q9", model.ClinicalUpdate{}), apperrors.NotFoundErr)
}

func TestUpdatePhotoReplacesOldFile(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()
	reg := alice("Q1")
	reg.Photo = upload("old.png", "old")
	_, err := f.svc.Register(ctx, reg)
	require.NoError(t, err)

	name, err := f.svc.UpdatePhoto(ctx, "Q1", upload("new.jpg", "new"))
	require.NoError(t, err)
	assert.Equal(t, "Q1__new.jpg", name)
	assert.False(t, fileExists(t, f.fs, "/data/photos/Q1__old.png"))
	assert.True(t, fileExists(t, f.fs, "/data/photos/Q1__new.jpg"))

	_, err = f.svc.UpdatePhoto(ctx, "Q1", upload("doc.pdf", "x"))
	assert.ErrorIs(t, err, apperrors.ValidationErr)
}

func TestTimelineMergesNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Q1")
	ctx := context.Background()
	_, err := f.svc.Register(ctx, alice("Q1"))
	require.NoError(t, err)

	_, err = f.svc.AttachRegistrationLab(ctx, "Q1", "operator:bob", upload("cbc.pdf", "%PDF"))
	require.NoError(t, err)

	old := &model.Visit{QRID: "Q1", VisitDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	future := &model.Visit{QRID: "Q1", VisitDate: time.Now().AddDate(1, 0, 0)}
	require.NoError(t, f.store.Visits.Create(ctx, old))
	require.NoError(t, f.store.Visits.Create(ctx, future))

	entries, err := f.svc.Timeline(ctx, "Q1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "visit", entries[0].Kind)
	assert.Equal(t, "lab", entries[1].Kind)
	assert.Equal(t, "visit", entries[2].Kind)
	assert.Equal(t, old.ID, entries[2].Visit.ID)
}

func TestLabOwnerFallsBackToStoredName(t *testing.T) {
	f := newFixture(t)
	owner, err := f.svc.LabOwner(context.Background(), "Q7__legacy.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Q7", owner)

	_, err = f.svc.LabOwner(context.Background(), "legacy.pdf")
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
}

type mockPatientRepository struct {
	mock.Mock
	repository.PatientRepository
}

func (m *mockPatientRepository) GetByQR(ctx context.Context, qrID string) (*model.Patient, error) {
	args := m.Called(ctx, qrID)
	if p := args.Get(0); p != nil {
		return p.(*model.Patient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPatientRepository) AddLab(ctx context.Context, lab *model.LabAttachment) error {
	return m.Called(ctx, lab).Error(0)
}

func (m *mockPatientRepository) UpdatePhoto(ctx context.Context, qrID, fileName string) (string, error) {
	args := m.Called(ctx, qrID, fileName)
	return args.String(0), args.Error(1)
}

func TestStorageFailureRemovesWrittenFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	files, err := storage.New(fs, "/data", 0)
	require.NoError(t, err)

	repo := new(mockPatientRepository)
	svc := NewService(repo, nil, files, security.NewBcryptHasher(bcrypt.MinCost, 6), &recordingMailer{}, metrics.NewNop())
	ctx := context.Background()

	repo.On("GetByQR", ctx, "Q1").Return(&model.Patient{QRID: "Q1"}, nil)
	repo.On("AddLab", ctx, mock.AnythingOfType("*model.LabAttachment")).Return(apperrors.Storage(errors.New("tx aborted")))
	repo.On("UpdatePhoto", ctx, "Q1", "Q1__me.png").Return("", apperrors.Storage(errors.New("tx aborted")))

	_, err = svc.AttachRegistrationLab(ctx, "Q1", "operator:bob", upload("cbc.pdf", "%PDF"))
	assert.ErrorIs(t, err, apperrors.StorageErr)
	assert.False(t, fileExists(t, fs, "/data/labs/Q1__cbc.pdf"))

	_, err = svc.UpdatePhoto(ctx, "Q1", upload("me.png", "png"))
	assert.ErrorIs(t, err, apperrors.StorageErr)
	assert.False(t, fileExists(t, fs, "/data/photos/Q1__me.png"))

	repo.AssertExpectations(t)
}
