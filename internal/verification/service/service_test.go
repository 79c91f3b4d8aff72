package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/auditlog"
	rlservice "verigate/internal/ratelimit/service"
	"verigate/internal/ratelimit/store/window"
	"verigate/internal/retry"
	"verigate/internal/verification/gateway"
	"verigate/internal/verification/models"
	"verigate/internal/verification/sources"
	"verigate/internal/verification/store"
	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
)

// pipeline wires the real components together: memory stores, the in-memory
// source registry and the simulated external client, with millisecond retry
// budgets so retried paths do not sleep for real.
type pipeline struct {
	svc     *Service
	backend *store.MemoryBackend
	windows *window.MemoryStore
	client  *gateway.SimulatedClient
	audit   *auditlog.Logger
}

func defaultConfigs() []models.SourceConfig {
	return []models.SourceConfig{
		{SourceName: "moe_registry", RateLimitPerMinute: 5, Timeout: time.Second, Active: true},
		{SourceName: "mohre_registry", RateLimitPerMinute: 5, Timeout: time.Second, Active: true},
		{SourceName: "cert_authority", RateLimitPerMinute: 5, Timeout: time.Second, Active: true},
	}
}

func newPipeline(t *testing.T, configs []models.SourceConfig, opts ...Option) *pipeline {
	t.Helper()

	audit := auditlog.New()
	registry, err := sources.NewRegistry(configs...)
	require.NoError(t, err)

	windows := window.NewMemoryStore()
	limiter, err := rlservice.New(windows, registry)
	require.NoError(t, err)

	backend := store.NewMemoryBackend()
	st, err := store.New(backend, store.WithLogger(audit))
	require.NoError(t, err)

	client := &gateway.SimulatedClient{}
	gw, err := gateway.New(registry, client,
		gateway.WithLogger(audit),
		gateway.WithVerifyRetry(retry.Options{
			MaxRetries: 3,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
			Jitter:     -1,
		}),
	)
	require.NoError(t, err)

	svc, err := New(limiter, st, gw, append([]Option{WithLogger(audit)}, opts...)...)
	require.NoError(t, err)

	return &pipeline{svc: svc, backend: backend, windows: windows, client: client, audit: audit}
}

func validEmployment() EmploymentClaim {
	return EmploymentClaim{
		EmiratesID:   "784-1990-1234567-1",
		EmployerName: "Etisalat",
		JobTitle:     "Network Engineer",
		StartDate:    "2020-03-01",
		EndDate:      "2023-06-30",
	}
}

func validEducation() EducationClaim {
	return EducationClaim{
		EmiratesID:      "784-1990-1234567-1",
		InstitutionName: "UAE University",
		DegreeType:      "Bachelor of Science",
		GraduationDate:  "2015-06-30",
	}
}

func validCertification() CertificationClaim {
	return CertificationClaim{
		EmiratesID:        "784-1990-1234567-1",
		CertificationName: "PMP",
		IssuingAuthority:  "PMI",
		IssueDateField:    "2022-09-12",
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	p := newPipeline(t, defaultConfigs())

	_, err := New(nil, p.svc.store, p.svc.gateway)
	assert.EqualError(t, err, "rate limiter is required")

	_, err = New(p.svc.limiter, nil, p.svc.gateway)
	assert.EqualError(t, err, "request store is required")

	_, err = New(p.svc.limiter, p.svc.store, nil)
	assert.EqualError(t, err, "verifier gateway is required")
}

func TestClaimValidation(t *testing.T) {
	tests := []struct {
		name  string
		claim claim
		want  string
	}{
		{
			name: "employment missing emirates id",
			claim: EmploymentClaim{
				EmployerName: "Etisalat", JobTitle: "Engineer", StartDate: "2020-03-01",
			},
			want: "emirates_id is required",
		},
		{
			name: "employment unparseable start date",
			claim: EmploymentClaim{
				EmiratesID: "784-1990-1234567-1", EmployerName: "Etisalat",
				JobTitle: "Engineer", StartDate: "01/03/2020",
			},
			want: "start_date must be a YYYY-MM-DD date",
		},
		{
			name: "employment end equals start",
			claim: EmploymentClaim{
				EmiratesID: "784-1990-1234567-1", EmployerName: "Etisalat",
				JobTitle: "Engineer", StartDate: "2020-03-01", EndDate: "2020-03-01",
			},
			want: "end_date must be after start_date",
		},
		{
			name: "education missing institution",
			claim: EducationClaim{
				EmiratesID: "784-1990-1234567-1", DegreeType: "Bachelor", GraduationDate: "2015-06-30",
			},
			want: "institution_name is required",
		},
		{
			name: "certification expiry before issue",
			claim: CertificationClaim{
				EmiratesID: "784-1990-1234567-1", CertificationName: "PMP",
				IssuingAuthority: "PMI", IssueDateField: "2022-09-12", ExpiryDate: "2021-01-01",
			},
			want: "expiry_date must be after issue_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.claim.validate()
			require.Error(t, err)
			assert.True(t, derrors.IsCode(err, derrors.CodeInvalidInput))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, validEmployment().validate())
	assert.NoError(t, validEducation().validate())
	assert.NoError(t, validCertification().validate())
}

// A claim that fails validation must never touch the limiter or the store.
func TestVerifyEmployment_ValidationFailureHasNoSideEffects(t *testing.T) {
	p := newPipeline(t, defaultConfigs())

	bad := validEmployment()
	bad.StartDate = "2023-06-30"
	bad.EndDate = "2020-03-01"

	res := p.svc.VerifyEmployment(context.Background(), id.NewUserID(), bad)

	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeInvalidInput, res.Code)
	assert.Empty(t, res.VerificationID)
	assert.Nil(t, res.Credential)

	byStatus, creds := p.backend.Counts()
	assert.Empty(t, byStatus)
	assert.Zero(t, creds)
	assert.Zero(t, p.windows.Len())
}

// Two transient faults are absorbed by the retry budget; the pipeline
// succeeds on the third attempt and records the attempt count.
func TestVerifyEducation_TransientFaultsThenSuccess(t *testing.T) {
	p := newPipeline(t, defaultConfigs())
	p.client.FailTransiently(2)
	userID := id.NewUserID()

	res := p.svc.VerifyEducation(context.Background(), userID, validEducation())

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	require.NotNil(t, res.Credential)
	assert.Equal(t, models.KindEducation, res.Credential.Kind)
	assert.Equal(t, "UAE University", res.Credential.IssuerName)
	assert.Equal(t, "Bachelor of Science", res.Credential.Title)
	assert.Equal(t, models.CredentialActive, res.Credential.Status)
	assert.NotEmpty(t, res.VerificationID)

	byStatus, creds := p.backend.Counts()
	assert.Equal(t, 1, byStatus[models.StatusVerified])
	assert.Equal(t, 1, creds)

	entries := p.audit.ByService(serviceName, 0)
	require.NotEmpty(t, entries)
	assert.Equal(t, auditlog.LevelInfo, entries[0].Level)
	assert.Equal(t, 3, entries[0].Metadata["attempts"])
}

// A rejection is terminal after a single attempt: the request fails and no
// credential is created.
func TestVerifyCertification_Rejection(t *testing.T) {
	p := newPipeline(t, defaultConfigs())
	p.client.Reject = true

	res := p.svc.VerifyCertification(context.Background(), id.NewUserID(), validCertification())

	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeRejected, res.Code)
	assert.Contains(t, res.Error, "no matching record")
	assert.NotEmpty(t, res.VerificationID)

	byStatus, creds := p.backend.Counts()
	assert.Equal(t, 1, byStatus[models.StatusFailed])
	assert.Zero(t, creds)

	var attempts any
	for _, e := range p.audit.ByService("verifier_gateway", 0) {
		if e.Operation == "verify" {
			attempts = e.Metadata["attempts"]
			break
		}
	}
	assert.Equal(t, 1, attempts)
}

func TestVerify_RateLimitExceeded(t *testing.T) {
	configs := defaultConfigs()
	configs[1].RateLimitPerMinute = 1
	p := newPipeline(t, configs)
	userID := id.NewUserID()

	first := p.svc.VerifyEmployment(context.Background(), userID, validEmployment())
	require.True(t, first.Success)

	second := p.svc.VerifyEmployment(context.Background(), userID, validEmployment())
	assert.False(t, second.Success)
	assert.Equal(t, derrors.CodeRateLimited, second.Code)
	assert.Empty(t, second.VerificationID, "no request may be created for a rate-limited claim")
	assert.Positive(t, second.RetryAfter)
	assert.LessOrEqual(t, second.RetryAfter, 60)

	byStatus, _ := p.backend.Counts()
	assert.Equal(t, 1, byStatus[models.StatusVerified])
}

// A source without configuration is an operator fault: the request is
// created but stays pending until it expires.
func TestVerify_ConfigurationNotFound(t *testing.T) {
	configs := []models.SourceConfig{
		{SourceName: "mohre_registry", RateLimitPerMinute: 5, Timeout: time.Second, Active: true},
	}
	p := newPipeline(t, configs)

	res := p.svc.VerifyEducation(context.Background(), id.NewUserID(), validEducation())

	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeNotFound, res.Code)
	assert.Contains(t, res.Error, "configuration not found")
	assert.NotEmpty(t, res.VerificationID)

	byStatus, creds := p.backend.Counts()
	assert.Equal(t, 1, byStatus[models.StatusPending])
	assert.Zero(t, creds)
}

func TestVerify_InactiveSourceIsNotFound(t *testing.T) {
	configs := defaultConfigs()
	configs[0].Active = false
	p := newPipeline(t, configs)

	res := p.svc.VerifyEducation(context.Background(), id.NewUserID(), validEducation())

	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeNotFound, res.Code)
}

func TestVerify_NilUser(t *testing.T) {
	p := newPipeline(t, defaultConfigs())

	res := p.svc.VerifyEducation(context.Background(), id.UserID{}, validEducation())

	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeInvalidInput, res.Code)

	byStatus, _ := p.backend.Counts()
	assert.Empty(t, byStatus)
}

type panicStore struct{}

func (panicStore) CreateRequest(context.Context, id.UserID, string, models.Kind, map[string]string) (*models.VerificationRequest, error) {
	panic("backend exploded")
}

func (panicStore) FinalizeRequest(context.Context, id.RequestID, models.RequestStatus, map[string]any) error {
	return nil
}

func (panicStore) CreateCredential(context.Context, models.VerifiedCredential) (*models.VerifiedCredential, error) {
	return nil, nil
}

// The pipeline boundary converts panics into the typed failure shape.
func TestVerify_PanicBoundary(t *testing.T) {
	p := newPipeline(t, defaultConfigs())

	svc, err := New(p.svc.limiter, panicStore{}, p.svc.gateway, WithLogger(p.audit))
	require.NoError(t, err)

	res := svc.VerifyEducation(context.Background(), id.NewUserID(), validEducation())

	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeInternal, res.Code)
	assert.Empty(t, res.VerificationID)
	assert.Contains(t, res.Error, "internal error")

	errs := p.audit.ByLevel(auditlog.LevelError, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "panicked")
}

// A credential exists if and only if a request reached verified.
func TestCredentialCreationInvariant(t *testing.T) {
	p := newPipeline(t, defaultConfigs())
	ctx := context.Background()

	verified := 0
	for i := range 6 {
		p.client.Reject = i%3 == 0
		res := p.svc.VerifyEmployment(ctx, id.NewUserID(), validEmployment())
		if res.Success {
			verified++
		}
	}
	p.client.Reject = false
	p.client.FailTransiently(10) // exceeds any budget: unavailable, not verified
	res := p.svc.VerifyEmployment(ctx, id.NewUserID(), validEmployment())
	assert.False(t, res.Success)
	assert.Equal(t, derrors.CodeUnavailable, res.Code)

	byStatus, creds := p.backend.Counts()
	assert.Equal(t, verified, byStatus[models.StatusVerified])
	assert.Equal(t, verified, creds)
	assert.Equal(t, 7-verified, byStatus[models.StatusFailed])
}
