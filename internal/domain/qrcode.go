package domain

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// QRType distinguishes reusable codes from single payment requests.
type QRType string

const (
	QRTypeStatic  QRType = "STATIC"
	QRTypeDynamic QRType = "DYNAMIC"
)

// Valid reports whether the type is one the backend issues.
func (t QRType) Valid() bool {
	return t == QRTypeStatic || t == QRTypeDynamic
}

// QRCode server-issued payment request. Immutable once created.
type QRCode struct {
	QRCodeID     int64            `json:"qrCodeId"`
	WalletID     int64            `json:"walletId"`
	QRType       QRType           `json:"qrType"`
	CurrencyCode string           `json:"currencyCode"`
	QRCode       string           `json:"qrCode"`
	QRCodeBase64 string           `json:"qrCodeBase64"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	MetaData     string           `json:"metaData,omitempty"`
}

// Validate rejects records that do not point at a wallet.
func (q QRCode) Validate() error {
	if q.WalletID <= 0 {
		return fmt.Errorf("walletId must be positive, got %d", q.WalletID)
	}
	if !q.QRType.Valid() {
		return fmt.Errorf("unknown qrType %q", q.QRType)
	}
	return nil
}

// Metadata decodes the flat key/value map carried in MetaData.
func (q QRCode) Metadata() (map[string]string, error) {
	if q.MetaData == "" {
		return map[string]string{}, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(q.MetaData), &meta); err != nil {
		return nil, errors.Wrap(err, "decode qr metadata")
	}
	return meta, nil
}

// CreateQRCodeRequest body of the issuing call.
type CreateQRCodeRequest struct {
	QRType      QRType          `json:"qrType"`
	Amount      decimal.Decimal `json:"amount"`
	WalletID    int64           `json:"walletId"`
	IsTenant    bool            `json:"isTenant"`
	Description string          `json:"description"`
	MetaData    string          `json:"metaData"`
}

// WithMetadata serializes meta into the request's MetaData field.
func (r CreateQRCodeRequest) WithMetadata(meta map[string]string) (CreateQRCodeRequest, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return r, errors.Wrap(err, "encode qr metadata")
	}
	r.MetaData = string(payload)
	return r, nil
}

// Validate reports missing or inconsistent fields.
func (r CreateQRCodeRequest) Validate() []string {
	var problems []string
	if !r.QRType.Valid() {
		problems = append(problems, fmt.Sprintf("qrType must be %s or %s", QRTypeStatic, QRTypeDynamic))
	}
	if r.WalletID <= 0 {
		problems = append(problems, "walletId is required")
	}
	if r.Amount.IsNegative() {
		problems = append(problems, "amount cannot be negative")
	}
	return problems
}
