package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// the remote API expects JSON numbers for amounts, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
}

// WalletSnapshot cached view of one wallet.
type WalletSnapshot struct {
	WalletID       int64           `json:"walletId"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
}

// Validate rejects snapshots that cannot identify a wallet.
func (w WalletSnapshot) Validate() error {
	if w.WalletID <= 0 {
		return fmt.Errorf("walletId must be positive, got %d", w.WalletID)
	}
	return nil
}

// TopUpRequest card top-up body.
type TopUpRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	WalletID    int64           `json:"walletId"`
	TopupType   string          `json:"topupType"`
	BankID      string          `json:"bankId,omitempty"`
	Cardholder  string          `json:"cardholder"`
	CardNumber  string          `json:"cardNumber"`
	CVV         int             `json:"cvv"`
	ExpiryDate  string          `json:"expiryDate"`
	Description string          `json:"description"`
	BillPhone   string          `json:"billPhone"`
	BillEmail   string          `json:"billEmail"`
	BillCountry string          `json:"billCountry"`
	BillCity    string          `json:"billCity"`
	BillState   string          `json:"billState"`
	BillAddress string          `json:"billAddress"`
	BillZip     string          `json:"billZip"`
}

// TopUpTypeCard is the only top-up channel the dashboard offers.
const TopUpTypeCard = "CARD"

// Validate reports missing or out of range fields.
func (r TopUpRequest) Validate() []string {
	var problems []string
	if !r.Amount.IsPositive() {
		problems = append(problems, "amount must be greater than zero")
	}
	if r.WalletID <= 0 {
		problems = append(problems, "walletId is required")
	}
	if r.TopupType == "" {
		problems = append(problems, "topupType is required")
	}
	return problems
}

// TopUpResult outcome reported by the top-up endpoint.
type TopUpResult struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message"`
}

// TransferRequest wallet to wallet transfer initiated from a scanned QR code.
type TransferRequest struct {
	WalletFrom    int64           `json:"walletFrom"`
	WalletTo      int64           `json:"walletTo"`
	Amount        decimal.Decimal `json:"amount"`
	UserID        string          `json:"userId"`
	Description   string          `json:"description"`
	EncodedQRCode string          `json:"encodedQrCode"`
}

// Validate reports missing or out of range fields.
func (r TransferRequest) Validate() []string {
	var problems []string
	if r.WalletFrom <= 0 {
		problems = append(problems, "walletFrom is required")
	}
	if r.WalletTo <= 0 {
		problems = append(problems, "walletTo is required")
	}
	if !r.Amount.IsPositive() {
		problems = append(problems, "amount must be greater than zero")
	}
	if r.UserID == "" {
		problems = append(problems, "userId is required")
	}
	return problems
}

// TransferReceipt echo of an accepted transfer.
type TransferReceipt struct {
	WalletFrom    int64           `json:"walletFrom"`
	WalletTo      int64           `json:"walletTo"`
	Amount        decimal.Decimal `json:"amount"`
	UserID        string          `json:"userId"`
	Description   string          `json:"description"`
	EncodedQRCode string          `json:"encodedQrCode"`
	TransactionID int64           `json:"transactionId"`
}

// TransferResult outcome reported by the transfer endpoint.
type TransferResult struct {
	Succeeded bool             `json:"succeeded"`
	Message   string           `json:"message"`
	Receipt   *TransferReceipt `json:"data,omitempty"`
}

// TenantCurrencyConfiguration currency set up for a tenant.
type TenantCurrencyConfiguration struct {
	ID                             int64           `json:"id"`
	TenantID                       string          `json:"tenantId"`
	CurrencyCode                   string          `json:"currencyCode"`
	AllowTransactions              bool            `json:"allowTransactions"`
	WalletID                       int64           `json:"walletId"`
	CurrentBalance                 decimal.Decimal `json:"currentBalance"`
	IsActive                       bool            `json:"isActive"`
	CreatedDate                    string          `json:"createdDate"`
	IsDefaultForWalletCreation     bool            `json:"isDefaultForWalletCreation,omitempty"`
	GenerateDynamicQROnClientSetup bool            `json:"generateDynamicQrOnClientSetup,omitempty"`
}
