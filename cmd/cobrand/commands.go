package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cobrand/internal"
	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/session"
	"github.com/vadiminshakov/cobrand/internal/setup"
	"github.com/vadiminshakov/cobrand/internal/web"
)

type runner = func(ctx context.Context, a *app, args []string) error

func loginCmd(fs *flag.FlagSet) runner {
	email := fs.String("email", "", "account email, prompts when empty")
	password := fs.String("password", "", "account password, or COBRAND_PASSWORD")
	return func(ctx context.Context, a *app, _ []string) error {
		creds := domain.Credentials{Email: *email, Password: *password}
		if creds.Password == "" {
			creds.Password = os.Getenv("COBRAND_PASSWORD")
		}
		tenant := a.cfg.Tenant
		if creds.Email == "" || creds.Password == "" {
			var err error
			if creds, tenant, err = setup.PromptLogin(tenant); err != nil {
				return err
			}
		}

		sess, err := a.client.Login(ctx, creds, tenant)
		if err != nil && sess.Token == "" {
			return err
		}
		printSession(sess)
		if err != nil {
			warn("signed in, but the wallet could not be loaded: %v", err)
			return nil
		}
		if entry, ok := a.client.Wallet(ctx); ok {
			printWallet(entry)
		}
		return nil
	}
}

func logoutCmd(*flag.FlagSet) runner {
	return func(ctx context.Context, a *app, _ []string) error {
		a.client.Logout(ctx)
		success("signed out")
		return nil
	}
}

func registerCmd(fs *flag.FlagSet) runner {
	var req domain.RegisterRequest
	fs.StringVar(&req.Email, "email", "", "email")
	fs.StringVar(&req.UserName, "user", "", "user name")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	fs.StringVar(&req.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&req.Password, "password", "", "password")
	return func(ctx context.Context, a *app, _ []string) error {
		req.ConfirmPassword = req.Password
		if err := a.client.Account.Register(ctx, req, a.cfg.Tenant); err != nil {
			return err
		}
		success("registered %s", req.Email)
		return nil
	}
}

func whoamiCmd(*flag.FlagSet) runner {
	return func(ctx context.Context, a *app, _ []string) error {
		sess, ok := a.client.Session(ctx)
		if !ok {
			return session.ErrNoSession
		}
		printSession(sess)
		return nil
	}
}

func usersCmd(fs *flag.FlagSet) runner {
	userType := fs.Int("type", 0, "user type filter")
	id := fs.String("id", "", "show a single user")
	return func(ctx context.Context, a *app, _ []string) error {
		if *id != "" {
			user, err := a.client.Account.User(ctx, *id)
			if err != nil {
				return err
			}
			return printJSON(user)
		}
		users, err := a.client.Account.Users(ctx, *userType)
		if err != nil {
			return err
		}
		return printJSON(users)
	}
}

func walletCmd(fs *flag.FlagSet) runner {
	refresh := fs.Bool("refresh", false, "re-fetch the wallet before showing it")
	maxAge := fs.Duration("max-age", 0, "re-fetch when the cached wallet is older than this")
	return func(ctx context.Context, a *app, _ []string) error {
		entry, ok := a.client.Wallet(ctx)
		stale := !ok || (*maxAge > 0 && time.Since(entry.FetchedAt) > *maxAge)
		if *refresh || stale {
			var err error
			if entry, err = a.client.RefreshWallet(ctx); err != nil {
				return err
			}
		}
		printWallet(entry)
		return nil
	}
}

func currenciesCmd(*flag.FlagSet) runner {
	return func(ctx context.Context, a *app, _ []string) error {
		currencies, err := a.client.Wallets.TenantCurrencyConfigurations(ctx)
		if err != nil {
			return err
		}
		return printJSON(currencies)
	}
}

func topUpCmd(fs *flag.FlagSet) runner {
	var req domain.TopUpRequest
	amount := fs.String("amount", "", "amount to add")
	fs.Int64Var(&req.WalletID, "wallet", 0, "wallet id, defaults to the cached wallet")
	fs.StringVar(&req.Cardholder, "holder", "", "cardholder name")
	fs.StringVar(&req.CardNumber, "card", "", "card number")
	fs.IntVar(&req.CVV, "cvv", 0, "card verification value")
	fs.StringVar(&req.ExpiryDate, "expiry", "", "card expiry, MM/YY")
	fs.StringVar(&req.Description, "desc", "", "description")
	fs.StringVar(&req.BillEmail, "bill-email", "", "billing email")
	fs.StringVar(&req.BillPhone, "bill-phone", "", "billing phone")
	fs.StringVar(&req.BillCountry, "bill-country", "", "billing country")
	fs.StringVar(&req.BillCity, "bill-city", "", "billing city")
	fs.StringVar(&req.BillState, "bill-state", "", "billing state")
	fs.StringVar(&req.BillAddress, "bill-address", "", "billing address")
	fs.StringVar(&req.BillZip, "bill-zip", "", "billing zip code")
	return func(ctx context.Context, a *app, _ []string) error {
		var err error
		if req.Amount, err = parseAmount(*amount); err != nil {
			return err
		}
		result, err := a.client.TopUp(ctx, req)
		if reportStale(err) {
			err = nil
		}
		if err != nil {
			return err
		}
		success("top-up accepted %s", result.Message)
		if entry, ok := a.client.Wallet(ctx); ok {
			printWallet(entry)
		}
		return nil
	}
}

func transferCmd(fs *flag.FlagSet) runner {
	var req domain.TransferRequest
	amount := fs.String("amount", "", "amount to send")
	fs.Int64Var(&req.WalletTo, "to", 0, "receiving wallet id")
	fs.Int64Var(&req.WalletFrom, "from", 0, "sending wallet id, defaults to the cached wallet")
	fs.StringVar(&req.Description, "desc", "", "description")
	fs.StringVar(&req.EncodedQRCode, "qr", "", "scanned QR payload the transfer pays")
	return func(ctx context.Context, a *app, _ []string) error {
		var err error
		if req.Amount, err = parseAmount(*amount); err != nil {
			return err
		}
		// a scanned code names the receiving wallet
		if req.WalletTo == 0 && req.EncodedQRCode != "" {
			code, err := a.client.QRCodes.ResolveScannedCode(ctx, req.EncodedQRCode)
			if err != nil {
				return err
			}
			req.WalletTo = code.WalletID
		}
		result, err := a.client.Transfer(ctx, req)
		if reportStale(err) {
			err = nil
		}
		if err != nil {
			return err
		}
		if result.Receipt != nil {
			success("transfer %d accepted", result.Receipt.TransactionID)
		} else {
			success("transfer accepted")
		}
		if entry, ok := a.client.Wallet(ctx); ok {
			printWallet(entry)
		}
		return nil
	}
}

func transactionsCmd(fs *flag.FlagSet) runner {
	var filter domain.TransactionFilter
	fs.Int64Var(&filter.WalletID, "wallet", 0, "wallet id, defaults to the cached wallet")
	fs.StringVar(&filter.TransactionStatus, "status", "", "transaction status")
	fs.StringVar(&filter.DateFrom, "from", "", "start date")
	fs.StringVar(&filter.DateTo, "to", "", "end date")
	fs.StringVar(&filter.SearchValue, "search", "", "search text")
	fs.StringVar(&filter.SortColumn, "sort", "", "sort column")
	fs.StringVar(&filter.SortColumnDirection, "dir", "", "sort direction, asc or desc")
	fs.IntVar(&filter.PageSize, "page-size", 20, "page size")
	fs.IntVar(&filter.Skip, "skip", 0, "records to skip")
	return func(ctx context.Context, a *app, _ []string) error {
		page, err := a.client.Transactions(ctx, filter)
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render(fmt.Sprintf("%d of %d transactions", len(page.Items), page.TotalRecord)))
		return printJSON(page.Items)
	}
}

func qrCmd(fs *flag.FlagSet) runner {
	isTenant := fs.Bool("tenant-owned", false, "tenant owned codes")
	walletID := fs.Int64("wallet", 0, "wallet id, defaults to the cached wallet")
	qrType := fs.String("type", string(domain.QRTypeStatic), "STATIC or DYNAMIC")
	amount := fs.String("amount", "", "requested amount")
	desc := fs.String("desc", "", "description")
	meta := fs.String("meta", "", "metadata as key=value pairs separated by commas")
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 {
			return errors.New("usage: cobrand qr [flags] list|create|scan <payload>")
		}
		if *walletID == 0 {
			*walletID, _ = a.client.CurrentWalletID(ctx)
		}

		switch args[0] {
		case "list":
			codes, err := a.client.QRCodes.ListQRCodes(ctx, *walletID, *isTenant)
			if err != nil {
				return err
			}
			for _, code := range codes {
				printQRCode(code)
			}
			return nil
		case "create":
			req := domain.CreateQRCodeRequest{
				QRType:      domain.QRType(strings.ToUpper(*qrType)),
				WalletID:    *walletID,
				IsTenant:    *isTenant,
				Description: *desc,
			}
			if *amount != "" {
				var err error
				if req.Amount, err = parseAmount(*amount); err != nil {
					return err
				}
			}
			pairs, err := parseMeta(*meta)
			if err != nil {
				return err
			}
			if req, err = req.WithMetadata(pairs); err != nil {
				return err
			}
			code, err := a.client.QRCodes.CreateQRCode(ctx, req)
			if err != nil {
				return err
			}
			printQRCode(code)
			return nil
		case "scan":
			if len(args) < 2 {
				return errors.New("usage: cobrand qr scan <payload>")
			}
			code, err := a.client.QRCodes.ResolveScannedCode(ctx, args[1])
			if err != nil {
				return err
			}
			printQRCode(code)
			return nil
		default:
			return fmt.Errorf("unknown qr command %q", args[0])
		}
	}
}

func kycCmd(fs *flag.FlagSet) runner {
	clientID := fs.String("client", "", "client id, defaults to the signed-in user")
	docType := fs.String("type", "", "document type")
	file := fs.String("file", "", "document file")
	configID := fs.Int64("config-id", 0, "onboarding configuration id, required by update")
	var att domain.AttestationRequest
	score := fs.String("score", "", "attestation score")
	fs.Int64Var(&att.DocumentID, "document", 0, "attested document id")
	fs.StringVar(&att.Status, "status", "", "attestation status")
	fs.StringVar(&att.Rationale, "rationale", "", "attestation rationale")
	fs.StringVar(&att.Method, "method", "", "verification method")
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 {
			return errors.New("usage: cobrand kyc [flags] configs|docs|upload|update|attest|approve")
		}
		sess, signedIn := a.client.Session(ctx)
		if *clientID == "" && signedIn {
			*clientID = sess.SubjectID
		}

		switch args[0] {
		case "configs":
			configs, err := a.client.Onboarding.ListConfigurations(ctx)
			if err != nil {
				return err
			}
			return printJSON(configs)
		case "docs":
			docs, err := a.client.Onboarding.ListDocuments(ctx, *clientID)
			if err != nil {
				return err
			}
			return printJSON(docs)
		case "upload", "update":
			doc, err := readDocument(*file)
			if err != nil {
				return err
			}
			if args[0] == "upload" {
				err = a.client.Onboarding.UploadDocument(ctx, *docType, doc, *clientID)
			} else {
				var id *int64
				if *configID > 0 {
					id = configID
				}
				err = a.client.Onboarding.UpdateDocument(ctx, *docType, doc, id)
			}
			if err != nil {
				return err
			}
			success("%s document sent", *docType)
			return nil
		case "attest":
			var err error
			if att.Score, err = decimal.NewFromString(*score); err != nil {
				return fmt.Errorf("incorrect score %q: %w", *score, err)
			}
			if signedIn {
				att.VerifierID = sess.SubjectID
				att.VerifierName = sess.Name
			}
			if err := a.client.Attestation.SubmitAttestation(ctx, *clientID, att); err != nil {
				return err
			}
			success("attestation submitted for %s", *clientID)
			return nil
		case "approve":
			if err := a.client.Attestation.ApproveAttestation(ctx, *clientID); err != nil {
				return err
			}
			success("documents of %s approved", *clientID)
			return nil
		default:
			return fmt.Errorf("unknown kyc command %q", args[0])
		}
	}
}

func serveCmd(fs *flag.FlagSet) runner {
	addr := fs.String("addr", "", "listen address, overrides the config file")
	return func(ctx context.Context, a *app, _ []string) error {
		listen := a.cfg.Dashboard.Addr
		if *addr != "" {
			listen = *addr
		}

		opts := []web.Option{web.WithEvents(a.client.Events()), web.WithMetrics(a.client.Registry())}
		if snapshots := a.client.Snapshots(); snapshots != nil {
			opts = append(opts, web.WithSnapshots(snapshots))
		}
		server := web.NewServer(listen, a.client, a.logger.Named("web"), opts...)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if len(a.cfg.Dashboard.TLSDomains) > 0 {
				return server.StartWithAutoTLS(ctx, a.cfg.Dashboard.TLSDomains, a.cfg.Dashboard.CertCacheDir)
			}
			return server.Start(ctx)
		})
		if interval := a.cfg.Dashboard.RefreshInterval; interval > 0 {
			g.Go(func() error {
				refreshLoop(ctx, a.client, interval, a.logger)
				return nil
			})
		}
		return g.Wait()
	}
}

// refreshLoop re-fetches the wallet every interval while someone is signed in.
func refreshLoop(ctx context.Context, client *internal.Client, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := client.RefreshWallet(ctx); err != nil && !errors.Is(err, session.ErrNoSession) {
				logger.Warn("periodic wallet refresh failed", zap.Error(err))
			}
		}
	}
}

// reportStale prints a warning for an operation that went through while the
// wallet refresh after it failed, and reports whether err was such a case.
func reportStale(err error) bool {
	var stale *internal.StaleWalletError
	if !errors.As(err, &stale) {
		return false
	}
	warn("%s went through but the wallet could not be refreshed, run `cobrand wallet -refresh`", stale.Operation)
	return true
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("incorrect amount %q: %w", raw, err)
	}
	return d, nil
}

func parseMeta(raw string) (map[string]string, error) {
	meta := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return meta, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("incorrect metadata pair %q, want key=value", pair)
		}
		meta[k] = strings.TrimSpace(v)
	}
	return meta, nil
}

func readDocument(path string) (domain.DocumentFile, error) {
	if path == "" {
		return domain.DocumentFile{}, errors.New("-file is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.DocumentFile{}, fmt.Errorf("read document: %w", err)
	}
	return domain.DocumentFile{Name: filepath.Base(path), Content: content}, nil
}
