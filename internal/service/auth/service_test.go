package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/internal/repository/memory"
	"github.com/jwalitptl/qrcare/pkg/auth"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/metrics"
	"github.com/jwalitptl/qrcare/pkg/security"
)

const masterKey = "master-key-for-tests"

type stubPatients struct {
	patient *model.Patient
	err     error
}

func (s stubPatients) Authenticate(context.Context, string, string, string) (*model.Patient, error) {
	return s.patient, s.err
}

func newService(t *testing.T, patients PatientAuthenticator) (*Service, *repository.Store, *auth.CapabilityIssuer) {
	t.Helper()
	store := memory.NewStore()
	issuer := auth.NewCapabilityIssuer("capability-secret")
	svc := NewService(store.Operators, store.Doctors, store.Patients, patients,
		security.NewBcryptHasher(bcrypt.MinCost, 6), issuer, metrics.NewNop(),
		Config{MasterOperatorKey: masterKey, SessionTTL: time.Hour})
	return svc, store, issuer
}

func TestVerifyMasterKey(t *testing.T) {
	svc, _, _ := newService(t, nil)
	assert.True(t, svc.VerifyMasterKey(masterKey))
	assert.False(t, svc.VerifyMasterKey("nope"))
	assert.False(t, svc.VerifyMasterKey(""))

	svc.masterKey = ""
	assert.False(t, svc.VerifyMasterKey(""))
}

func TestCreateAndLoginOperator(t *testing.T) {
	svc, _, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateOperator(ctx, "wrong", "bob", "hunter22", "Bob")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)

	op, err := svc.CreateOperator(ctx, masterKey, "bob", "hunter22", "Bob")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", op.PasswordHash)

	_, err = svc.CreateOperator(ctx, masterKey, "bob", "hunter22", "Bob")
	assert.ErrorIs(t, err, apperrors.ConflictErr)

	_, err = svc.CreateOperator(ctx, masterKey, "eve", "123", "Eve")
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	p, err := svc.LoginOperator(ctx, "bob", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, access.Operator, p.Kind)
	assert.Equal(t, op.ID, p.ID)
	assert.Empty(t, p.QRID)

	_, err = svc.LoginOperator(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)
	_, err = svc.LoginOperator(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)
}

func TestDoctorLoginIssuesScopedCapability(t *testing.T) {
	svc, store, issuer := newService(t, nil)
	ctx := context.Background()

	_, err := store.QR.Seed(ctx, "Q1")
	require.NoError(t, err)
	require.NoError(t, store.Patients.CreateWithAssignment(ctx, &model.Patient{QRID: "Q1", Username: "alice"}, nil))

	doc, err := svc.RegisterDoctor(ctx, DoctorRegistration{
		Username: "drwho", Password: "tardis1", FullName: "The Doctor", Email: "Who@Example.com", Hospital: "General",
	})
	require.NoError(t, err)
	assert.Equal(t, "who@example.com", doc.Email)

	_, err = svc.RegisterDoctor(ctx, DoctorRegistration{
		Username: "drno", Password: "tardis1", FullName: "No", Email: "who@example.com",
	})
	assert.ErrorIs(t, err, apperrors.ConflictErr)

	p, err := svc.LoginDoctor(ctx, "Q1", "drwho", "tardis1")
	require.NoError(t, err)
	assert.Equal(t, access.Doctor, p.Kind)
	assert.Equal(t, "Q1", p.QRID)

	claims, err := issuer.Verify(p.Capability, "Q1")
	require.NoError(t, err)
	assert.Equal(t, "drwho", claims.Username)
	_, err = issuer.Verify(p.Capability, "Q2")
	assert.ErrorIs(t, err, auth.ErrScopeMismatch)

	_, err = svc.LoginDoctor(ctx, "Q1", "drwho", "wrong")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)

	_, err = svc.LoginDoctor(ctx, "Q9", "drwho", "tardis1")
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
}

func TestRegisterDoctorRequiresFields(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, err := svc.RegisterDoctor(context.Background(), DoctorRegistration{Username: "drwho", Password: "tardis1"})
	assert.ErrorIs(t, err, apperrors.ValidationErr)
}

func TestLoginPatient(t *testing.T) {
	svc, _, _ := newService(t, stubPatients{patient: &model.Patient{Base: model.Base{ID: 7}, QRID: "Q1", Username: "alice"}})

	p, err := svc.LoginPatient(context.Background(), "Q1", "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, &access.Principal{Kind: access.Patient, ID: 7, Username: "alice", QRID: "Q1"}, p)

	svc.patientSvc = stubPatients{err: apperrors.Unauthorized(nil)}
	_, err = svc.LoginPatient(context.Background(), "Q1", "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)
}
