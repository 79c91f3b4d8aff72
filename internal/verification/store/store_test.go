package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

func newStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	s, err := New(backend)
	require.NoError(t, err)
	return s, backend
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(nil)
	assert.EqualError(t, err, "store backend is required")
}

func TestCreateRequest_SetsLifecycleFields(t *testing.T) {
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	backend := NewMemoryBackend()
	s, err := New(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	userID := id.NewUserID()
	req, err := s.CreateRequest(context.Background(), userID, "moe_registry",
		models.KindEducation, map[string]string{"institution_name": "UAE University"})
	require.NoError(t, err)

	assert.False(t, req.ID.IsNil())
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, now, req.CreatedAt)
	assert.Equal(t, now.Add(24*time.Hour), req.ExpiresAt)
	assert.Nil(t, req.VerifiedAt)

	stored, err := s.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "UAE University", stored.Payload["institution_name"])
}

func TestCreateRequest_ValidatesInput(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.CreateRequest(ctx, id.UserID{}, "moe_registry", models.KindEducation, nil)
	assert.True(t, derrors.IsCode(err, derrors.CodeInvalidInput))

	_, err = s.CreateRequest(ctx, id.NewUserID(), "", models.KindEducation, nil)
	assert.True(t, derrors.IsCode(err, derrors.CodeInvalidInput))

	_, err = s.CreateRequest(ctx, id.NewUserID(), "moe_registry", models.Kind("diploma"), nil)
	assert.True(t, derrors.IsCode(err, derrors.CodeInvalidInput))
}

func TestFinalizeRequest_VerifiedSetsVerifiedAt(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, id.NewUserID(), "moe_registry", models.KindEducation, nil)
	require.NoError(t, err)

	response := map[string]any{"verified": true}
	require.NoError(t, s.FinalizeRequest(ctx, req.ID, models.StatusVerified, response))

	stored, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, stored.Status)
	assert.NotNil(t, stored.VerifiedAt)
	assert.Equal(t, response, stored.Response)
}

func TestFinalizeRequest_FailedLeavesVerifiedAtNil(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, id.NewUserID(), "moe_registry", models.KindEmployment, nil)
	require.NoError(t, err)

	require.NoError(t, s.FinalizeRequest(ctx, req.ID, models.StatusFailed, map[string]any{"error": "no match"}))

	stored, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Nil(t, stored.VerifiedAt)
}

// Once terminal, no further transition is observable.
func TestFinalizeRequest_StatusIsMonotonic(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, id.NewUserID(), "moe_registry", models.KindEducation, nil)
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRequest(ctx, req.ID, models.StatusVerified, nil))

	err = s.FinalizeRequest(ctx, req.ID, models.StatusFailed, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	stored, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, stored.Status)
}

func TestFinalizeRequest_RejectsNonTerminalStatus(t *testing.T) {
	s, _ := newStore(t)
	err := s.FinalizeRequest(context.Background(), id.NewRequestID(), models.StatusPending, nil)
	assert.True(t, derrors.IsCode(err, derrors.CodeInvalidInput))
}

func TestFinalizeRequest_UnknownRequest(t *testing.T) {
	s, _ := newStore(t)
	err := s.FinalizeRequest(context.Background(), id.NewRequestID(), models.StatusVerified, nil)
	assert.True(t, derrors.IsCode(err, derrors.CodeNotFound))
}

func TestCreateCredential_NormalizesStatus(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	userID := id.NewUserID()

	cred, err := s.CreateCredential(ctx, models.VerifiedCredential{
		UserID:     userID,
		Kind:       models.KindCertification,
		IssuerName: "PMI",
		Title:      "PMP",
		IssueDate:  "2024-11-02",
		Source:     "cert_authority",
		Status:     models.CredentialStatus("bogus"),
	})
	require.NoError(t, err)

	assert.False(t, cred.ID.IsNil())
	assert.Equal(t, models.CredentialActive, cred.Status)
	assert.False(t, cred.CreatedAt.IsZero())

	listed, err := s.ListCredentialsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "PMP", listed[0].Title)
}

func TestCreateCredential_ValidatesKind(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.CreateCredential(context.Background(), models.VerifiedCredential{
		UserID: id.NewUserID(),
		Kind:   models.Kind("diploma"),
	})
	assert.True(t, derrors.IsCode(err, derrors.CodeInvalidInput))
}

func TestListRequestsByUser_MostRecentFirst(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	userID := id.NewUserID()

	first, err := s.CreateRequest(ctx, userID, "moe_registry", models.KindEducation, nil)
	require.NoError(t, err)
	second, err := s.CreateRequest(ctx, userID, "mohre_registry", models.KindEmployment, nil)
	require.NoError(t, err)

	// Another user's request must not leak in.
	_, err = s.CreateRequest(ctx, id.NewUserID(), "moe_registry", models.KindEducation, nil)
	require.NoError(t, err)

	listed, err := s.ListRequestsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
	assert.Equal(t, first.ID, listed[1].ID)
}

type flakyBackend struct {
	*MemoryBackend
	failures int
}

func (b *flakyBackend) InsertRequest(ctx context.Context, req models.VerificationRequest) error {
	if b.failures > 0 {
		b.failures--
		return errors.New("NETWORK_ERROR: connection reset")
	}
	return b.MemoryBackend.InsertRequest(ctx, req)
}

// Persistence calls retry transient failures within the conservative local
// budget and still commit.
func TestCreateRequest_RetriesTransientBackendFailure(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(), failures: 2}
	s, err := New(backend)
	require.NoError(t, err)

	req, err := s.CreateRequest(context.Background(), id.NewUserID(), "moe_registry",
		models.KindEducation, nil)
	require.NoError(t, err)
	assert.False(t, req.ID.IsNil())
}

func TestCreateRequest_ExhaustedRetriesReturnError(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(), failures: 10}
	s, err := New(backend)
	require.NoError(t, err)

	_, err = s.CreateRequest(context.Background(), id.NewUserID(), "moe_registry",
		models.KindEducation, nil)
	require.Error(t, err)
	assert.True(t, derrors.IsCode(err, derrors.CodeInternal))
}
