// Package qrcode issues payment QR codes and resolves scanned ones.
package qrcode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
)

const (
	pathList    = "/api/v1/ewallet/getallqr"
	pathCreate  = "/api/v1/ewallet/createqr"
	pathResolve = "/api/v1/ewallet/retrieveqrfromscannedcode"
)

// Service implements the QR calls.
type Service struct {
	api    gateway.Caller
	logger *zap.Logger
}

// New creates the QR service.
func New(api gateway.Caller, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}
}

// ListQRCodes returns the codes issued for a wallet. isTenant selects the
// tenant-owned codes of that wallet.
func (s *Service) ListQRCodes(ctx context.Context, walletID int64, isTenant bool) ([]domain.QRCode, error) {
	if walletID <= 0 {
		return nil, gateway.NewValidationError([]string{"walletId is required"}, nil)
	}

	env, err := gateway.DoEnvelope[json.RawMessage](ctx, s.api, gateway.Request{
		Name:   "getallqr",
		Method: http.MethodGet,
		Path:   pathList,
		Query: url.Values{
			"WalletId": {strconv.FormatInt(walletID, 10)},
			"IsTenant": {strconv.FormatBool(isTenant)},
		},
	}, "Failed to fetch QR codes")
	if err != nil {
		return nil, err
	}

	// a wallet with a single code gets the record unwrapped
	data := gjson.ParseBytes(env.Data)
	var raw []string
	switch {
	case data.IsArray():
		for _, item := range data.Array() {
			raw = append(raw, item.Raw)
		}
	case data.IsObject():
		raw = append(raw, data.Raw)
	case data.Type == gjson.Null:
	default:
		return nil, errors.Wrap(gateway.ErrMalformedResponse, "getallqr: unexpected data")
	}

	codes := make([]domain.QRCode, 0, len(raw))
	for _, item := range raw {
		code, err := decodeQRCode("getallqr", []byte(item))
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// CreateQRCode issues a code and returns the stored record.
func (s *Service) CreateQRCode(ctx context.Context, req domain.CreateQRCodeRequest) (domain.QRCode, error) {
	if problems := req.Validate(); len(problems) > 0 {
		return domain.QRCode{}, gateway.NewValidationError(problems, nil)
	}
	if req.MetaData == "" {
		var err error
		if req, err = req.WithMetadata(nil); err != nil {
			return domain.QRCode{}, err
		}
	}

	env, err := gateway.DoEnvelope[json.RawMessage](ctx, s.api, gateway.Request{
		Name:   "createqr",
		Method: http.MethodPost,
		Path:   pathCreate,
		Body:   req,
	}, "Failed to create QR code")
	if err != nil {
		return domain.QRCode{}, err
	}

	code, err := decodeQRCode("createqr", env.Data)
	if err != nil {
		return domain.QRCode{}, err
	}
	s.logger.Info("qr code issued",
		zap.Int64("qr_code_id", code.QRCodeID),
		zap.Int64("wallet_id", code.WalletID),
		zap.String("qr_type", string(code.QRType)))
	return code, nil
}

// ResolveScannedCode turns a scanned payload back into the issued record.
func (s *Service) ResolveScannedCode(ctx context.Context, payload string) (domain.QRCode, error) {
	if payload == "" {
		return domain.QRCode{}, gateway.NewValidationError([]string{"scanned code is empty"}, nil)
	}

	env, err := gateway.DoEnvelope[json.RawMessage](ctx, s.api, gateway.Request{
		Name:   "retrieveqrfromscannedcode",
		Method: http.MethodGet,
		Path:   pathResolve,
		Query:  url.Values{"ScannedQrCode": {payload}},
	}, "Failed to resolve QR code")
	if err != nil {
		return domain.QRCode{}, err
	}
	return decodeQRCode("retrieveqrfromscannedcode", env.Data)
}

func decodeQRCode(endpoint string, raw []byte) (domain.QRCode, error) {
	if !gjson.ParseBytes(raw).IsObject() {
		return domain.QRCode{}, errors.Wrapf(gateway.ErrMalformedResponse, "%s: missing qr code", endpoint)
	}
	var code domain.QRCode
	if err := json.Unmarshal(raw, &code); err != nil {
		return domain.QRCode{}, errors.Wrapf(gateway.ErrMalformedResponse, "%s: %v", endpoint, err)
	}
	if err := code.Validate(); err != nil {
		return domain.QRCode{}, errors.Wrapf(gateway.ErrMalformedResponse, "%s: %v", endpoint, err)
	}
	return code, nil
}
