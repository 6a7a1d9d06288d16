package ewallet

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
)

type mockCaller struct {
	requests []gateway.Request
	body     string
	err      error
}

func (m *mockCaller) Call(_ context.Context, req gateway.Request) ([]byte, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return []byte(m.body), nil
}

func (m *mockCaller) last(t *testing.T) gateway.Request {
	t.Helper()
	require.NotEmpty(t, m.requests)
	return m.requests[len(m.requests)-1]
}

func TestService_ListWallets(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		want        []domain.WalletSnapshot
		wantMessage []string
		malformed   bool
	}{
		{
			name: "wallets",
			body: `{"succeeded":true,"message":null,"totalRecord":1,"data":[{"walletId":5,"currentBalance":120.5,"currency":"NGN","status":"ACTIVE"}]}`,
			want: []domain.WalletSnapshot{{WalletID: 5, CurrentBalance: decimal.RequireFromString("120.5"), Currency: "NGN", Status: "ACTIVE"}},
		},
		{
			name:        "not succeeded without message",
			body:        `{"succeeded":false,"message":null,"data":[]}`,
			wantMessage: []string{"Failed to fetch wallets"},
		},
		{
			name:      "wallet without id",
			body:      `{"succeeded":true,"data":[{"currentBalance":1}]}`,
			malformed: true,
		},
		{
			name:      "balance of wrong type",
			body:      `{"succeeded":true,"data":[{"walletId":5,"currentBalance":true}]}`,
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockCaller{body: tt.body}
			svc := New(api, zap.NewNop())

			got, err := svc.ListWallets(context.Background(), "explicit-token")
			req := api.last(t)
			assert.Equal(t, pathWallets, req.Path)
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "explicit-token", req.Token)

			switch {
			case tt.malformed:
				assert.ErrorIs(t, err, gateway.ErrMalformedResponse)
			case tt.wantMessage != nil:
				apiErr, ok := gateway.AsAPIError(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantMessage, apiErr.Message)
			default:
				require.NoError(t, err)
				require.Len(t, got, len(tt.want))
				for i := range tt.want {
					assert.Equal(t, tt.want[i].WalletID, got[i].WalletID)
					assert.True(t, tt.want[i].CurrentBalance.Equal(got[i].CurrentBalance))
					assert.Equal(t, tt.want[i].Currency, got[i].Currency)
				}
			}
		})
	}
}

func validTopUp() domain.TopUpRequest {
	return domain.TopUpRequest{
		Amount:     decimal.NewFromInt(50),
		WalletID:   5,
		Cardholder: "John Doe",
		CardNumber: "4111111111111111",
		CVV:        123,
		ExpiryDate: "12/30",
	}
}

func TestService_TopUp(t *testing.T) {
	t.Run("defaults to card top-up", func(t *testing.T) {
		api := &mockCaller{body: `{"succeeded":true,"message":"Wallet funded"}`}
		svc := New(api, zap.NewNop())

		res, err := svc.TopUp(context.Background(), "", validTopUp())
		require.NoError(t, err)
		assert.True(t, res.Succeeded)
		assert.Equal(t, "Wallet funded", res.Message)

		body, err := json.Marshal(api.last(t).Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"topupType":"CARD"`)
		assert.Contains(t, string(body), `"amount":50`)
	})

	t.Run("declined", func(t *testing.T) {
		api := &mockCaller{body: `{"succeeded":false,"message":"Card declined"}`}
		_, err := New(api, zap.NewNop()).TopUp(context.Background(), "", validTopUp())

		apiErr, ok := gateway.AsAPIError(err)
		require.True(t, ok)
		assert.Equal(t, []string{"Card declined"}, apiErr.Message)
	})

	t.Run("invalid amount", func(t *testing.T) {
		api := &mockCaller{}
		req := validTopUp()
		req.Amount = decimal.Zero

		_, err := New(api, zap.NewNop()).TopUp(context.Background(), "", req)
		assert.True(t, gateway.IsKind(err, gateway.KindValidation))
		assert.Empty(t, api.requests)
	})
}

func TestService_Transfer(t *testing.T) {
	api := &mockCaller{body: `{"succeeded":true,"message":null,"data":{"walletFrom":5,"walletTo":9,"amount":10,"userId":"u-1","transactionId":77}}`}
	svc := New(api, zap.NewNop())

	res, err := svc.Transfer(context.Background(), domain.TransferRequest{
		WalletFrom:    5,
		WalletTo:      9,
		Amount:        decimal.NewFromInt(10),
		UserID:        "u-1",
		EncodedQRCode: "000201",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, int64(77), res.Receipt.TransactionID)
	assert.Equal(t, pathTransfer, api.last(t).Path)

	_, err = svc.Transfer(context.Background(), domain.TransferRequest{})
	assert.True(t, gateway.IsKind(err, gateway.KindValidation))
}

func TestService_ListTransactions(t *testing.T) {
	api := &mockCaller{body: `{"succeeded":true,"totalRecord":42,"data":[{"transactionId":1,"amount":9.99,"walletId":5}]}`}
	svc := New(api, zap.NewNop())

	page, err := svc.ListTransactions(context.Background(), "", domain.TransactionFilter{WalletID: 5, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 42, page.TotalRecord)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "9.99", page.Items[0].Amount.String())

	q := api.last(t).Query
	assert.Equal(t, "5", q.Get("walletId"))
	assert.Equal(t, "10", q.Get("pageSize"))

	_, err = svc.ListTransactions(context.Background(), "", domain.TransactionFilter{})
	assert.True(t, gateway.IsKind(err, gateway.KindValidation))
}

func TestService_TenantCurrencyConfigurations(t *testing.T) {
	api := &mockCaller{body: `{"succeeded":true,"totalRecord":1,"data":[{"id":1,"tenantId":"T1","currencyCode":"NGN","walletId":3,"currentBalance":0,"isActive":true}]}`}

	configs, err := New(api, zap.NewNop()).TenantCurrencyConfigurations(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "NGN", configs[0].CurrencyCode)
}

func TestService_PropagatesGatewayErrors(t *testing.T) {
	apiErr := &gateway.APIError{StatusCode: 500, Message: []string{gateway.DefaultServerMessage}, ErrorCode: gateway.ErrorCodeServer, Kind: gateway.KindServer}
	svc := New(&mockCaller{err: apiErr}, zap.NewNop())

	_, err := svc.ListWallets(context.Background(), "")
	assert.Same(t, apiErr, err)
}
