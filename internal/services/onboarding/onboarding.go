// Package onboarding manages the KYC documents a client submits to a tenant.
package onboarding

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
)

const (
	pathConfigurations = "/api/v1/onboarding/getonboardingconfigurations"
	pathDocuments      = "/api/v1/onboarding/getonboardingdocuments"
	pathDocument       = "/api/v1/onboarding/onboardingdocument"

	documentsPageSize = 10000
)

// ErrConfigurationIDRequired is returned when a document update does not
// name the configuration it belongs to.
var ErrConfigurationIDRequired = errors.New("onboarding configuration id is required")

// Service implements the onboarding calls.
type Service struct {
	api    gateway.Caller
	logger *zap.Logger
}

// New creates the onboarding service.
func New(api gateway.Caller, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}
}

// ListConfigurations returns the document types the tenant requires.
func (s *Service) ListConfigurations(ctx context.Context) ([]domain.OnboardingConfiguration, error) {
	env, err := gateway.DoEnvelope[[]domain.OnboardingConfiguration](ctx, s.api, gateway.Request{
		Name:   "getonboardingconfigurations",
		Method: http.MethodGet,
		Path:   pathConfigurations,
	}, "Failed to fetch onboarding configurations")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ListDocuments returns every document of a client, file contents included.
func (s *Service) ListDocuments(ctx context.Context, clientID string) ([]domain.OnboardingDocument, error) {
	if clientID == "" {
		return nil, gateway.NewValidationError([]string{"clientId is required"}, nil)
	}

	env, err := gateway.DoEnvelope[[]domain.OnboardingDocument](ctx, s.api, gateway.Request{
		Name:   "getonboardingdocuments",
		Method: http.MethodGet,
		Path:   pathDocuments,
		Query: url.Values{
			"PageSize":    {strconv.Itoa(documentsPageSize)},
			"Skip":        {"0"},
			"clientId":    {clientID},
			"includeFile": {"true"},
		},
	}, "Failed to fetch onboarding documents")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// UploadDocument submits a new document for a client. An empty clientID
// uploads for the signed-in user.
func (s *Service) UploadDocument(ctx context.Context, documentType string, file domain.DocumentFile, clientID string) error {
	if problems := validateUpload(documentType, file); len(problems) > 0 {
		return gateway.NewValidationError(problems, nil)
	}

	form := gateway.NewMultipart().
		Field("DocumentType", documentType).
		File("DocumentData", file.Name, file.Content)

	err := gateway.DoAction(ctx, s.api, gateway.Request{
		Name:   "uploadonboardingdocument",
		Method: http.MethodPost,
		Path:   pathDocument,
		Query:  url.Values{"ClientId": {clientID}},
		Form:   form,
	}, "Failed to upload document")
	if err != nil {
		return err
	}

	s.logger.Info("onboarding document uploaded",
		zap.String("document_type", documentType), zap.String("client_id", clientID), zap.Int("size", len(file.Content)))
	return nil
}

// UpdateDocument replaces the document filed under a configuration.
// configID must be set.
func (s *Service) UpdateDocument(ctx context.Context, documentType string, file domain.DocumentFile, configID *int64) error {
	if configID == nil {
		return gateway.NewValidationError([]string{ErrConfigurationIDRequired.Error()}, ErrConfigurationIDRequired)
	}
	if problems := validateUpload(documentType, file); len(problems) > 0 {
		return gateway.NewValidationError(problems, nil)
	}

	form := gateway.NewMultipart().
		Field("OnboardingConfigurationsId", strconv.FormatInt(*configID, 10)).
		Field("IsActive", "true").
		Field("DocumentType", documentType).
		File("DocumentFileData", file.Name, file.Content)

	err := gateway.DoAction(ctx, s.api, gateway.Request{
		Name:   "updateonboardingdocument",
		Method: http.MethodPut,
		Path:   pathDocument,
		Form:   form,
	}, "Failed to update document")
	if err != nil {
		return err
	}

	s.logger.Info("onboarding document updated",
		zap.String("document_type", documentType), zap.Int64("configuration_id", *configID))
	return nil
}

func validateUpload(documentType string, file domain.DocumentFile) []string {
	var problems []string
	if documentType == "" {
		problems = append(problems, "documentType is required")
	}
	if file.Name == "" {
		problems = append(problems, "file name is required")
	}
	if len(file.Content) == 0 {
		problems = append(problems, "file is empty")
	}
	return problems
}
