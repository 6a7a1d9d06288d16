package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/internal"
	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/gateway"
	"github.com/vadiminshakov/cobrand/internal/session"
	"github.com/vadiminshakov/cobrand/internal/wallet"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	domain.Credentials
	Tenant string `json:"tenant"`
}

// walletView is the wallet as served to the dashboard.
type walletView struct {
	wallet.Entry
	Stale   bool   `json:"stale,omitempty"`
	Warning string `json:"warning,omitempty"`
}

type operationResponse struct {
	Result  any    `json:"result"`
	Stale   bool   `json:"stale,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	sess, err := s.backend.Login(r.Context(), req.Credentials, req.Tenant)
	if err != nil && sess.Token == "" {
		s.writeError(w, err)
		return
	}
	if err != nil {
		// signed in, only the wallet fetch failed
		s.logger.Warn("login without wallet", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.backend.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.backend.Session(r.Context())
	if !ok {
		s.writeError(w, session.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.backend.Session(r.Context()); !ok {
		s.writeError(w, session.ErrNoSession)
		return
	}
	entry, ok := s.backend.Wallet(r.Context())
	if !ok {
		writeEnvelope(w, http.StatusNotFound, "wallet not loaded", "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, walletView{Entry: entry})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	entry, err := s.backend.RefreshWallet(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletView{Entry: entry})
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req domain.TopUpRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.backend.TopUp(r.Context(), req)
	s.writeOperation(w, result, err)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	result, err := s.backend.Transfer(r.Context(), req)
	s.writeOperation(w, result, err)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		TransactionStatus:   q.Get("transactionStatus"),
		DateFrom:            q.Get("dateFrom"),
		DateTo:              q.Get("dateTo"),
		SearchValue:         q.Get("searchValue"),
		SortColumn:          q.Get("sortColumn"),
		SortColumnDirection: q.Get("sortColumnDirection"),
	}
	var problems []string
	parse := func(key string, dst *int) {
		if raw := q.Get(key); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				problems = append(problems, key+" must be a non-negative integer")
				return
			}
			*dst = v
		}
	}
	parse("pageSize", &filter.PageSize)
	parse("skip", &filter.Skip)
	if raw := q.Get("walletId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			problems = append(problems, "walletId must be an integer")
		}
		filter.WalletID = id
	}
	if len(problems) > 0 {
		s.writeError(w, gateway.NewValidationError(problems, nil))
		return
	}

	page, err := s.backend.Transactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": page.Items, "totalRecord": page.TotalRecord})
}

// writeOperation reports a balance changing call. A call that went through
// while the wallet refresh failed is still a success, flagged stale.
func (s *Server) writeOperation(w http.ResponseWriter, result any, err error) {
	var stale *internal.StaleWalletError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, operationResponse{Result: result})
	case errors.As(err, &stale):
		s.logger.Warn("wallet left stale", zap.String("operation", stale.Operation), zap.Error(stale.Err))
		writeJSON(w, http.StatusOK, operationResponse{Result: result, Stale: true, Warning: stale.Error()})
	default:
		s.writeError(w, err)
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, gateway.NewValidationError([]string{"invalid request body"}, err))
		return false
	}
	return true
}

// writeError answers with the error envelope. Backend errors keep their
// status code, local failures map to 401, 409 or 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := gateway.AsAPIError(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.StatusCode)
		_, _ = w.Write(apiErr.JSON())
		return
	}
	if errors.Is(err, session.ErrNoSession) {
		writeEnvelope(w, http.StatusUnauthorized, err.Error(), "Unauthorized")
		return
	}
	if errors.Is(err, wallet.ErrSessionChanged) {
		writeEnvelope(w, http.StatusConflict, err.Error(), "Conflict")
		return
	}
	s.logger.Error("dashboard request failed", zap.Error(err))
	writeEnvelope(w, http.StatusInternalServerError, gateway.DefaultMessage, gateway.ErrorCodeServer)
}

func writeEnvelope(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, gateway.APIError{StatusCode: status, Message: []string{message}, ErrorCode: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
