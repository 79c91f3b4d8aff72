package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"verigate/internal/retry"
	"verigate/internal/verification/gateway/mocks"
	"verigate/internal/verification/models"
	id "verigate/pkg/domain"
	derrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/sentinel"
)

type GatewaySuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockSources *mocks.MockSourceProvider
	mockClient  *mocks.MockClient
	gateway     *Gateway
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockSources = mocks.NewMockSourceProvider(s.ctrl)
	s.mockClient = mocks.NewMockClient(s.ctrl)

	var err error
	// shrunk budgets so retried paths do not sleep for real
	s.gateway, err = New(s.mockSources, s.mockClient,
		WithResolveRetry(retry.Options{MaxRetries: 2, BaseDelay: time.Millisecond, Jitter: -1}),
		WithVerifyRetry(retry.Options{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Jitter: -1}),
	)
	s.Require().NoError(err)
}

func (s *GatewaySuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GatewaySuite) activeConfig() models.SourceConfig {
	return models.SourceConfig{
		SourceName:         "moe_registry",
		RateLimitPerMinute: 5,
		Timeout:            5 * time.Second,
		AuthenticationType: "api_key",
		Active:             true,
	}
}

func (s *GatewaySuite) newRequest() models.VerificationRequest {
	return models.VerificationRequest{
		ID:         id.NewRequestID(),
		UserID:     id.NewUserID(),
		SourceName: "moe_registry",
		Kind:       models.KindEducation,
		Payload:    map[string]string{"institution_name": "UAE University"},
		Status:     models.StatusPending,
	}
}

func (s *GatewaySuite) TestNew() {
	s.Run("nil source provider returns error", func() {
		_, err := New(nil, s.mockClient)
		s.Error(err)
		s.Contains(err.Error(), "source provider is required")
	})

	s.Run("nil client returns error", func() {
		_, err := New(s.mockSources, nil)
		s.Error(err)
		s.Contains(err.Error(), "verifier client is required")
	})
}

func (s *GatewaySuite) TestResolveConfigActiveSource() {
	cfg := s.activeConfig()
	s.mockSources.EXPECT().SourceConfig(gomock.Any(), "moe_registry").Return(&cfg, nil)

	got, err := s.gateway.ResolveConfig(context.Background(), "moe_registry")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("moe_registry", got.SourceName)
}

func (s *GatewaySuite) TestResolveConfigUnknownSource() {
	s.mockSources.EXPECT().SourceConfig(gomock.Any(), "ghost_registry").
		Return(nil, sentinel.ErrNotFound).Times(1)

	got, err := s.gateway.ResolveConfig(context.Background(), "ghost_registry")
	s.NoError(err)
	s.Nil(got)
}

func (s *GatewaySuite) TestResolveConfigInactiveSource() {
	cfg := s.activeConfig()
	cfg.Active = false
	s.mockSources.EXPECT().SourceConfig(gomock.Any(), "moe_registry").Return(&cfg, nil)

	got, err := s.gateway.ResolveConfig(context.Background(), "moe_registry")
	s.NoError(err)
	s.Nil(got)
}

func (s *GatewaySuite) TestResolveConfigRetriesTransientFailure() {
	cfg := s.activeConfig()
	gomock.InOrder(
		s.mockSources.EXPECT().SourceConfig(gomock.Any(), "moe_registry").
			Return(nil, retry.Taggedf(retry.TagNetworkError, "registry unreachable")),
		s.mockSources.EXPECT().SourceConfig(gomock.Any(), "moe_registry").Return(&cfg, nil),
	)

	got, err := s.gateway.ResolveConfig(context.Background(), "moe_registry")
	s.Require().NoError(err)
	s.NotNil(got)
}

func (s *GatewaySuite) TestResolveConfigPersistentFailure() {
	s.mockSources.EXPECT().SourceConfig(gomock.Any(), "moe_registry").
		Return(nil, errors.New("registry corrupt")).Times(1)

	got, err := s.gateway.ResolveConfig(context.Background(), "moe_registry")
	s.Require().Error(err)
	s.Nil(got)
	s.True(derrors.IsCode(err, derrors.CodeUnavailable))
}

func (s *GatewaySuite) TestVerifySucceedsFirstAttempt() {
	cfg := s.activeConfig()
	req := s.newRequest()
	resp := &models.VerifyResponse{Verified: true, Source: cfg.SourceName}
	s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).Return(resp, nil)

	got, attempts, err := s.gateway.Verify(context.Background(), cfg, req)
	s.Require().NoError(err)
	s.Equal(resp, got)
	s.Equal(1, attempts)
}

// Two transient faults consume two retries; the third attempt lands.
func (s *GatewaySuite) TestVerifyRetriesTransientThenSucceeds() {
	cfg := s.activeConfig()
	req := s.newRequest()
	resp := &models.VerifyResponse{Verified: true, Source: cfg.SourceName}
	gomock.InOrder(
		s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).
			Return(nil, retry.Taggedf(retry.TagServiceUnavailable, "upstream overloaded")),
		s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).
			Return(nil, retry.Taggedf(retry.TagServiceUnavailable, "upstream overloaded")),
		s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).Return(resp, nil),
	)

	got, attempts, err := s.gateway.Verify(context.Background(), cfg, req)
	s.Require().NoError(err)
	s.Equal(resp, got)
	s.Equal(3, attempts)
}

// A rejection is an answer, not a fault: one attempt, code preserved.
func (s *GatewaySuite) TestVerifyRejectionIsNotRetried() {
	cfg := s.activeConfig()
	req := s.newRequest()
	s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).
		Return(nil, derrors.New(derrors.CodeRejected, "no matching record in moe_registry")).
		Times(1)

	got, attempts, err := s.gateway.Verify(context.Background(), cfg, req)
	s.Require().Error(err)
	s.Nil(got)
	s.Equal(1, attempts)
	s.True(derrors.IsCode(err, derrors.CodeRejected))
}

func (s *GatewaySuite) TestVerifyExhaustedBudget() {
	cfg := s.activeConfig()
	req := s.newRequest()
	s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).
		Return(nil, retry.Taggedf(retry.TagConnectionRefused, "dial tcp")).
		Times(4)

	got, attempts, err := s.gateway.Verify(context.Background(), cfg, req)
	s.Require().Error(err)
	s.Nil(got)
	s.Equal(4, attempts)
	s.True(derrors.IsCode(err, derrors.CodeUnavailable))
}

// The per-attempt deadline comes from the source's configuration.
func (s *GatewaySuite) TestVerifyAttemptTimeout() {
	cfg := s.activeConfig()
	cfg.Timeout = 10 * time.Millisecond
	req := s.newRequest()
	s.gateway.verifyRetry.MaxRetries = -1

	s.mockClient.EXPECT().Verify(gomock.Any(), cfg, req).
		DoAndReturn(func(ctx context.Context, _ models.SourceConfig, _ models.VerificationRequest) (*models.VerifyResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	got, attempts, err := s.gateway.Verify(context.Background(), cfg, req)
	s.Require().Error(err)
	s.Nil(got)
	s.Equal(1, attempts)
	s.True(derrors.IsCode(err, derrors.CodeUnavailable))
}

func TestSimulatedClient(t *testing.T) {
	suite.Run(t, new(SimulatedClientSuite))
}

type SimulatedClientSuite struct {
	suite.Suite
}

func (s *SimulatedClientSuite) TestVerifiesByDefault() {
	client := &SimulatedClient{}
	cfg := models.SourceConfig{SourceName: "moe_registry", Active: true}
	req := models.VerificationRequest{Payload: map[string]string{"degree_type": "Bachelor"}}

	resp, err := client.Verify(context.Background(), cfg, req)
	s.Require().NoError(err)
	s.True(resp.Verified)
	s.Equal("moe_registry", resp.Source)
	s.Equal("Bachelor", resp.Details["degree_type"])
}

func (s *SimulatedClientSuite) TestRejects() {
	client := &SimulatedClient{Reject: true}
	cfg := models.SourceConfig{SourceName: "moe_registry", Active: true}

	_, err := client.Verify(context.Background(), cfg, models.VerificationRequest{})
	s.Require().Error(err)
	s.True(derrors.IsCode(err, derrors.CodeRejected))
}

func (s *SimulatedClientSuite) TestTransientFailuresDrain() {
	client := &SimulatedClient{}
	client.FailTransiently(2)
	cfg := models.SourceConfig{SourceName: "moe_registry", Active: true}

	for range 2 {
		_, err := client.Verify(context.Background(), cfg, models.VerificationRequest{})
		s.Require().Error(err)
		s.True(retry.Retryable(err, retry.DefaultRetryableTags()))
	}

	resp, err := client.Verify(context.Background(), cfg, models.VerificationRequest{})
	s.Require().NoError(err)
	s.True(resp.Verified)
}

func (s *SimulatedClientSuite) TestLatencyHonorsContext() {
	client := &SimulatedClient{Latency: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Verify(ctx, models.SourceConfig{SourceName: "moe_registry"}, models.VerificationRequest{})
	s.Require().ErrorIs(err, context.DeadlineExceeded)
}
