// Package attestation records reviewer verdicts on onboarding documents.
package attestation

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
)

const (
	pathSubmit  = "/api/v1/onboarding/onboardingverificationandscore"
	pathApprove = "/api/v1/onboarding/approvedocument"
)

// Service implements the attestation calls.
type Service struct {
	api    gateway.Caller
	logger *zap.Logger
}

// New creates the attestation service.
func New(api gateway.Caller, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}
}

// SubmitAttestation files a score and status for a client's document.
func (s *Service) SubmitAttestation(ctx context.Context, clientID string, req domain.AttestationRequest) error {
	problems := req.Validate()
	if clientID == "" {
		problems = append(problems, "clientId is required")
	}
	if len(problems) > 0 {
		return gateway.NewValidationError(problems, nil)
	}

	err := gateway.DoAction(ctx, s.api, gateway.Request{
		Name:   "onboardingverificationandscore",
		Method: http.MethodPost,
		Path:   pathSubmit,
		Query:  url.Values{"ClientId": {clientID}},
		Body:   req,
	}, "Failed to submit attestation")
	if err != nil {
		return err
	}

	s.logger.Info("attestation submitted",
		zap.String("client_id", clientID),
		zap.Int64("document_id", req.DocumentID),
		zap.String("status", req.Status),
		zap.String("score", req.Score.String()))
	return nil
}

// ApproveAttestation approves the reviewed documents of a client.
func (s *Service) ApproveAttestation(ctx context.Context, clientID string) error {
	if clientID == "" {
		return gateway.NewValidationError([]string{"clientId is required"}, nil)
	}

	err := gateway.DoAction(ctx, s.api, gateway.Request{
		Name:   "approvedocument",
		Method: http.MethodPost,
		Path:   pathApprove,
		Query:  url.Values{"ClientId": {clientID}},
	}, "Failed to approve document")
	if err != nil {
		return err
	}

	s.logger.Info("client documents approved", zap.String("client_id", clientID))
	return nil
}
