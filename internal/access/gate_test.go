package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/qrcare/pkg/auth"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

func newGate() (*Gate, *auth.CapabilityIssuer) {
	issuer := auth.NewCapabilityIssuer("test-secret")
	return NewGate(issuer), issuer
}

func TestPatientScopedToOwnQR(t *testing.T) {
	g, _ := newGate()
	p := &Principal{Kind: Patient, ID: 1, Username: "alice", QRID: "BRESCAN-0001"}

	assert.NoError(t, g.Authorize(p, ViewDashboard, "BRESCAN-0001"))
	assert.NoError(t, g.Authorize(p, ViewTimeline, "BRESCAN-0001"))
	assert.NoError(t, g.Authorize(p, DownloadLab, "BRESCAN-0001"))

	err := g.Authorize(p, ViewDashboard, "BRESCAN-0002")
	assert.ErrorIs(t, err, apperrors.UnauthorizedErr)
	assert.ErrorIs(t, err, ErrDenied)

	assert.Error(t, g.Authorize(p, AddVisit, "BRESCAN-0001"))
	assert.Error(t, g.Authorize(p, ViewAnalytics, ""))
}

func TestOperatorUnconstrainedByQR(t *testing.T) {
	g, _ := newGate()
	op := &Principal{Kind: Operator, ID: 2, Username: "bob"}

	for _, a := range []Action{SearchPatients, EditClinical, AddVisit, ExportVisits, ViewAnalytics, SeedQR, DownloadLab, ListVisits} {
		assert.NoError(t, g.Authorize(op, a, "ANY-QR"), a)
	}
	assert.Error(t, g.Authorize(op, ViewDashboard, "ANY-QR"))
	assert.Error(t, g.Authorize(op, ViewDoctorDesk, "ANY-QR"))
}

func TestDoctorNeedsCapabilityForQR(t *testing.T) {
	g, issuer := newGate()
	token, err := issuer.Issue(3, "drwho", "Q1", time.Hour)
	require.NoError(t, err)

	doc := &Principal{Kind: Doctor, ID: 3, Username: "drwho", QRID: "Q1", Capability: token}
	assert.NoError(t, g.Authorize(doc, AddVisit, "Q1"))
	assert.NoError(t, g.Authorize(doc, ViewDoctorDesk, "Q1"))
	assert.Error(t, g.Authorize(doc, AddVisit, "Q2"))
	assert.Error(t, g.Authorize(doc, ViewAnalytics, ""))

	forged := &Principal{Kind: Doctor, ID: 3, Username: "drwho", QRID: "Q2", Capability: token}
	assert.ErrorIs(t, g.Authorize(forged, AddVisit, "Q2"), apperrors.UnauthorizedErr)

	noCap := &Principal{Kind: Doctor, ID: 3, Username: "drwho", QRID: "Q1"}
	assert.Error(t, g.Authorize(noCap, AddVisit, "Q1"))
}

func TestAnonymousDenied(t *testing.T) {
	g, _ := newGate()
	for a := range rules {
		assert.Error(t, g.Authorize(&Principal{}, a, "Q1"), a)
	}
	assert.Error(t, g.Authorize(nil, ViewDashboard, "Q1"))
}

func TestUnknownActionDenied(t *testing.T) {
	g, _ := newGate()
	assert.Error(t, g.Authorize(&Principal{Kind: Operator}, Action("drop_tables"), ""))
}

func TestLoginPath(t *testing.T) {
	assert.Equal(t, "/login/Q1", LoginPath(ViewDashboard, "Q1"))
	assert.Equal(t, "/operator_login", LoginPath(ViewAnalytics, ""))
	assert.Equal(t, "/operator_login", LoginPath(AddVisit, "Q1"))
	assert.Equal(t, "/doctor/login/Q1", LoginPath(ViewDoctorDesk, "Q1"))
	assert.Equal(t, "/login/Q1", LoginPath(DownloadLab, "Q1"))
	assert.Equal(t, "/operator_login", LoginPath(DownloadLab, ""))
}

func TestPrincipalContext(t *testing.T) {
	assert.False(t, FromContext(context.Background()).Authenticated())
	assert.Equal(t, "anonymous", FromContext(context.Background()).Tag())

	p := &Principal{Kind: Operator, Username: "bob"}
	ctx := WithPrincipal(context.Background(), p)
	assert.Equal(t, p, FromContext(ctx))
	assert.Equal(t, "operator:bob", p.Tag())
}
