// Package ewallet wraps the wallet endpoints: balances, top-ups, transfers
// and the transaction history.
package ewallet

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
)

const (
	pathWallets      = "/api/v1/ewallet/getallwallet"
	pathTopUp        = "/api/v1/ewallet/topupwallet"
	pathTransfer     = "/api/v1/ewallet/wallettowallettransfer"
	pathTransactions = "/api/v1/ewallet/getwallettransactions"
	pathCurrencies   = "/api/v1/ewallet/gettenantcurrencyconfigurations"
)

// Service implements the wallet calls.
type Service struct {
	api    gateway.Caller
	logger *zap.Logger
}

// New creates the wallet service.
func New(api gateway.Caller, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}
}

// ListWallets returns the wallets of the signed-in user. token overrides the
// session token when set.
func (s *Service) ListWallets(ctx context.Context, token string) ([]domain.WalletSnapshot, error) {
	env, err := gateway.DoEnvelope[[]domain.WalletSnapshot](ctx, s.api, gateway.Request{
		Name:   "getallwallet",
		Method: http.MethodGet,
		Path:   pathWallets,
		Token:  token,
	}, "Failed to fetch wallets")
	if err != nil {
		return nil, err
	}

	for _, w := range env.Data {
		if err := w.Validate(); err != nil {
			return nil, errors.Wrapf(gateway.ErrMalformedResponse, "getallwallet: %v", err)
		}
	}
	return env.Data, nil
}

// TopUp credits a wallet by card.
func (s *Service) TopUp(ctx context.Context, token string, req domain.TopUpRequest) (domain.TopUpResult, error) {
	if req.TopupType == "" {
		req.TopupType = domain.TopUpTypeCard
	}
	if problems := req.Validate(); len(problems) > 0 {
		return domain.TopUpResult{}, gateway.NewValidationError(problems, nil)
	}

	env, err := gateway.DoEnvelope[any](ctx, s.api, gateway.Request{
		Name:   "topupwallet",
		Method: http.MethodPost,
		Path:   pathTopUp,
		Body:   req,
		Token:  token,
	}, "Top-up failed")
	if err != nil {
		return domain.TopUpResult{}, err
	}

	s.logger.Info("wallet topped up",
		zap.Int64("wallet_id", req.WalletID), zap.String("amount", req.Amount.String()))
	return domain.TopUpResult{Succeeded: true, Message: env.Message.First("")}, nil
}

// Transfer moves funds between wallets.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	if problems := req.Validate(); len(problems) > 0 {
		return domain.TransferResult{}, gateway.NewValidationError(problems, nil)
	}

	env, err := gateway.DoEnvelope[*domain.TransferReceipt](ctx, s.api, gateway.Request{
		Name:   "wallettowallettransfer",
		Method: http.MethodPost,
		Path:   pathTransfer,
		Body:   req,
	}, "Transfer failed")
	if err != nil {
		return domain.TransferResult{}, err
	}

	result := domain.TransferResult{Succeeded: true, Message: env.Message.First(""), Receipt: env.Data}
	fields := []zap.Field{zap.Int64("wallet_from", req.WalletFrom), zap.Int64("wallet_to", req.WalletTo)}
	if env.Data != nil {
		fields = append(fields, zap.Int64("transaction_id", env.Data.TransactionID))
	}
	s.logger.Info("wallet transfer accepted", fields...)
	return result, nil
}

// ListTransactions returns one page of the wallet history.
func (s *Service) ListTransactions(ctx context.Context, token string, filter domain.TransactionFilter) (domain.TransactionPage, error) {
	if filter.WalletID <= 0 {
		return domain.TransactionPage{}, gateway.NewValidationError([]string{"walletId is required"}, nil)
	}

	env, err := gateway.DoEnvelope[[]domain.Transaction](ctx, s.api, gateway.Request{
		Name:   "getwallettransactions",
		Method: http.MethodGet,
		Path:   pathTransactions,
		Query:  filter.Query(),
		Token:  token,
	}, "Failed to fetch transactions")
	if err != nil {
		return domain.TransactionPage{}, err
	}
	return domain.TransactionPage{Items: env.Data, TotalRecord: env.TotalRecord}, nil
}

// TenantCurrencyConfigurations lists the currencies set up for the tenant.
func (s *Service) TenantCurrencyConfigurations(ctx context.Context) ([]domain.TenantCurrencyConfiguration, error) {
	env, err := gateway.DoEnvelope[[]domain.TenantCurrencyConfiguration](ctx, s.api, gateway.Request{
		Name:   "gettenantcurrencyconfigurations",
		Method: http.MethodGet,
		Path:   pathCurrencies,
	}, "Failed to fetch currency configurations")
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}
