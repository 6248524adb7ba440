package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	"github.com/jwalitptl/qrcare/pkg/auth"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/logger"
	"github.com/jwalitptl/qrcare/pkg/metrics"
	"github.com/jwalitptl/qrcare/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidMasterKey   = errors.New("invalid master key")
)

// PatientAuthenticator checks patient credentials against one QR token.
type PatientAuthenticator interface {
	Authenticate(ctx context.Context, qrID, username, password string) (*model.Patient, error)
}

type Service struct {
	operators  repository.OperatorRepository
	doctors    repository.DoctorRepository
	patients   repository.PatientRepository
	patientSvc PatientAuthenticator
	hasher     security.PasswordHasher
	issuer     *auth.CapabilityIssuer
	masterKey  string
	sessionTTL time.Duration
	metrics    *metrics.Metrics
}

type Config struct {
	MasterOperatorKey string
	SessionTTL        time.Duration
}

func NewService(operators repository.OperatorRepository, doctors repository.DoctorRepository,
	patients repository.PatientRepository, patientSvc PatientAuthenticator, hasher security.PasswordHasher,
	issuer *auth.CapabilityIssuer, m *metrics.Metrics, cfg Config) *Service {
	return &Service{
		operators:  operators,
		doctors:    doctors,
		patients:   patients,
		patientSvc: patientSvc,
		hasher:     hasher,
		issuer:     issuer,
		masterKey:  cfg.MasterOperatorKey,
		sessionTTL: cfg.SessionTTL,
		metrics:    m,
	}
}

// VerifyMasterKey compares key with the configured master operator key in
// constant time. An unset master key matches nothing.
func (s *Service) VerifyMasterKey(key string) bool {
	if s.masterKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.masterKey)) == 1
}

func (s *Service) CreateOperator(ctx context.Context, masterKey, username, password, fullName string) (*model.Operator, error) {
	if !s.VerifyMasterKey(masterKey) {
		logger.FromContext(ctx).Warn().Str("username", username).Msg("operator creation with invalid master key")
		return nil, apperrors.Unauthorized(ErrInvalidMasterKey)
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.Validation("username and password are required")
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	op := &model.Operator{Username: username, PasswordHash: hash, FullName: strings.TrimSpace(fullName)}
	if err := s.operators.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	logger.FromContext(ctx).Info().Str("username", op.Username).Msg("operator created")
	return op, nil
}

func (s *Service) LoginOperator(ctx context.Context, username, password string) (*access.Principal, error) {
	op, err := s.operators.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, s.failLookup(access.Operator, password, err)
	}
	if err := s.hasher.Compare(op.PasswordHash, password); err != nil {
		return nil, s.failLogin(access.Operator, err)
	}

	s.metrics.Logins.WithLabelValues(string(access.Operator), "success").Inc()
	return &access.Principal{Kind: access.Operator, ID: op.ID, Username: op.Username}, nil
}

// DoctorRegistration holds the fields of the open doctor sign-up form.
type DoctorRegistration struct {
	Username  string
	Password  string
	FullName  string
	Email     string
	Hospital  string
	Specialty string
}

func (s *Service) RegisterDoctor(ctx context.Context, reg DoctorRegistration) (*model.Doctor, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if reg.Username == "" || reg.Password == "" || reg.FullName == "" || reg.Email == "" {
		return nil, apperrors.Validation("username, password, full name and email are required")
	}

	hash, err := s.hash(reg.Password)
	if err != nil {
		return nil, err
	}
	doc := &model.Doctor{
		Username:     reg.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(reg.FullName),
		Email:        reg.Email,
		Hospital:     strings.TrimSpace(reg.Hospital),
		Specialty:    strings.TrimSpace(reg.Specialty),
	}
	if err := s.doctors.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to register doctor: %w", err)
	}

	logger.FromContext(ctx).Info().Str("username", doc.Username).Msg("doctor registered")
	return doc, nil
}

// LoginDoctor authenticates a doctor for one patient. The returned principal
// carries a capability scoped to qrID that expires with the session.
func (s *Service) LoginDoctor(ctx context.Context, qrID, username, password string) (*access.Principal, error) {
	doc, err := s.doctors.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, s.failLookup(access.Doctor, password, err)
	}
	if err := s.hasher.Compare(doc.PasswordHash, password); err != nil {
		return nil, s.failLogin(access.Doctor, err)
	}
	if _, err := s.patients.GetByQR(ctx, qrID); err != nil {
		return nil, err
	}

	capability, err := s.issuer.Issue(doc.ID, doc.Username, qrID, s.sessionTTL)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.metrics.Logins.WithLabelValues(string(access.Doctor), "success").Inc()
	return &access.Principal{
		Kind:       access.Doctor,
		ID:         doc.ID,
		Username:   doc.Username,
		QRID:       qrID,
		Capability: capability,
	}, nil
}

func (s *Service) LoginPatient(ctx context.Context, qrID, username, password string) (*access.Principal, error) {
	p, err := s.patientSvc.Authenticate(ctx, qrID, username, password)
	if err != nil {
		return nil, err
	}
	return &access.Principal{Kind: access.Patient, ID: p.ID, Username: p.Username, QRID: p.QRID}, nil
}

// failLookup spends a dummy comparison when the user does not exist so that
// unknown usernames and wrong passwords take the same time.
func (s *Service) failLookup(kind access.Kind, password string, cause error) error {
	if errors.Is(cause, apperrors.NotFoundErr) {
		s.hasher.Burn(password)
	}
	return s.failLogin(kind, cause)
}

func (s *Service) failLogin(kind access.Kind, cause error) error {
	if !errors.Is(cause, apperrors.NotFoundErr) && !errors.Is(cause, security.ErrMismatch) {
		return cause
	}
	s.metrics.Logins.WithLabelValues(string(kind), "failure").Inc()
	return apperrors.Unauthorized(ErrInvalidCredentials)
}

func (s *Service) hash(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooShort) {
		return "", apperrors.Validation(err.Error())
	}
	if err != nil {
		return "", apperrors.Internal(err)
	}
	return hash, nil
}
