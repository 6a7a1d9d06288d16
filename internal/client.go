package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/config"
	"github.com/vadiminshakov/cobrand/internal/domain"
	"github.com/vadiminshakov/cobrand/internal/events"
	"github.com/vadiminshakov/cobrand/internal/gateway"
	"github.com/vadiminshakov/cobrand/internal/services/account"
	"github.com/vadiminshakov/cobrand/internal/services/attestation"
	"github.com/vadiminshakov/cobrand/internal/services/ewallet"
	"github.com/vadiminshakov/cobrand/internal/services/onboarding"
	"github.com/vadiminshakov/cobrand/internal/services/qrcode"
	"github.com/vadiminshakov/cobrand/internal/session"
	"github.com/vadiminshakov/cobrand/internal/storage/kv"
	"github.com/vadiminshakov/cobrand/internal/storage/walletsnapshots"
	"github.com/vadiminshakov/cobrand/internal/wallet"
)

const eventBuffer = 16

// ErrNoWallets is returned when the backend lists no wallet for the user.
var ErrNoWallets = errors.New("no wallets available for the signed-in user")

// StaleWalletError reports an operation that succeeded on the backend while
// the wallet refresh after it failed. The cached snapshot is left untouched.
type StaleWalletError struct {
	Operation string
	Err       error
}

func (e *StaleWalletError) Error() string {
	return fmt.Sprintf("%s succeeded but wallet refresh failed: %v", e.Operation, e.Err)
}

func (e *StaleWalletError) Unwrap() error { return e.Err }

// Client wires the session, the wallet cache, the backend gateway and the
// domain services together and runs the multi-step flows.
type Client struct {
	Account     *account.Service
	Wallets     *ewallet.Service
	QRCodes     *qrcode.Service
	Onboarding  *onboarding.Service
	Attestation *attestation.Service

	cfg         config.Config
	logger      *zap.Logger
	store       kv.Store
	ownsStore   bool
	snapshots   *walletsnapshots.WALStore
	sessions    *session.Store
	cache       *wallet.Cache
	broadcaster *events.WalletBroadcaster
	registry    *prometheus.Registry
	api         *gateway.Client
}

// ClientOption configures NewClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	store      kv.Store
	httpClient *http.Client
}

// WithStore uses store instead of the backend named in the config. The
// caller keeps ownership of store.
func WithStore(store kv.Store) ClientOption {
	return func(o *clientOptions) {
		o.store = store
	}
}

// WithHTTPClient sends backend calls through hc.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// NewClient builds a client from cfg.
func NewClient(cfg config.Config, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{cfg: cfg, logger: logger, store: o.store}
	if c.store == nil {
		store, err := newStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.ownsStore = true

		snapshots, err := newSnapshotLog(cfg.Store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		c.snapshots = snapshots
	}

	c.broadcaster = events.NewWalletBroadcaster(eventBuffer)
	c.sessions = session.NewStore(c.store, logger.Named("session"))

	cacheOpts := []wallet.Option{wallet.WithBroadcaster(c.broadcaster)}
	if c.snapshots != nil {
		cacheOpts = append(cacheOpts, wallet.WithSnapshotLog(c.snapshots))
	}
	c.cache = wallet.NewCache(c.store, c.sessions, logger.Named("wallet"), cacheOpts...)
	c.sessions.OnClear(c.cache)

	var metrics *gateway.Metrics
	c.registry, metrics = newRegistry()

	api, err := gateway.New(gateway.Config{
		BaseURL:    cfg.APIURL,
		Timeout:    cfg.Timeout,
		HTTPClient: o.httpClient,
	}, c.sessions, logger.Named("gateway"), gatewayOptions(cfg, metrics)...)
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "create api gateway")
	}
	c.api = api

	c.Account = account.New(api, c.sessions, logger.Named("account"))
	c.Wallets = ewallet.New(api, logger.Named("ewallet"))
	c.QRCodes = qrcode.New(api, logger.Named("qrcode"))
	c.Onboarding = onboarding.New(api, logger.Named("onboarding"))
	c.Attestation = attestation.New(api, logger.Named("attestation"))

	return c, nil
}

// Login signs in under tenant, or the configured tenant when empty, and
// loads the first wallet of the user. When only the wallet fetch fails the
// session stays established and the error is returned with it.
func (c *Client) Login(ctx context.Context, creds domain.Credentials, tenant string) (domain.Session, error) {
	if strings.TrimSpace(tenant) == "" {
		tenant = c.cfg.Tenant
	}
	sess, err := c.Account.Login(ctx, creds, tenant)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := c.loadWallet(ctx, sess.Token); err != nil {
		return sess, errors.Wrap(err, "load wallet after login")
	}
	return sess, nil
}

// Session returns the signed-in session.
func (c *Client) Session(ctx context.Context) (domain.Session, bool) {
	return c.sessions.Current(ctx)
}

// Wallet returns the cached wallet with its revision and fetch time.
func (c *Client) Wallet(ctx context.Context) (wallet.Entry, bool) {
	return c.cache.Entry(ctx)
}

// CurrentWalletID returns the id of the cached wallet.
func (c *Client) CurrentWalletID(ctx context.Context) (int64, bool) {
	snapshot, ok := c.cache.Get(ctx)
	if !ok {
		return 0, false
	}
	return snapshot.WalletID, true
}

// RefreshWallet re-fetches the wallet list and replaces the cached snapshot.
// On failure the previous snapshot is kept.
func (c *Client) RefreshWallet(ctx context.Context) (wallet.Entry, error) {
	sess, ok := c.sessions.Current(ctx)
	if !ok {
		return wallet.Entry{}, session.ErrNoSession
	}
	return c.loadWallet(ctx, sess.Token)
}

func (c *Client) loadWallet(ctx context.Context, token string) (wallet.Entry, error) {
	wallets, err := c.Wallets.ListWallets(ctx, token)
	if err != nil {
		return wallet.Entry{}, err
	}
	if len(wallets) == 0 {
		return wallet.Entry{}, ErrNoWallets
	}
	return c.cache.SetForSession(ctx, token, wallets[0])
}

// TopUp charges a card into the wallet, the cached one when req names none,
// then refreshes the cache.
func (c *Client) TopUp(ctx context.Context, req domain.TopUpRequest) (domain.TopUpResult, error) {
	sess, ok := c.sessions.Current(ctx)
	if !ok {
		return domain.TopUpResult{}, session.ErrNoSession
	}
	if req.WalletID == 0 {
		req.WalletID, _ = c.CurrentWalletID(ctx)
	}
	result, err := c.Wallets.TopUp(ctx, sess.Token, req)
	if err != nil {
		return domain.TopUpResult{}, err
	}
	if _, err := c.loadWallet(ctx, sess.Token); err != nil {
		c.logger.Warn("wallet refresh after top-up failed", zap.Error(err))
		return result, &StaleWalletError{Operation: "top-up", Err: err}
	}
	return result, nil
}

// Transfer moves funds out of the cached wallet unless req names the source
// wallet and user, then refreshes the cache.
func (c *Client) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	sess, ok := c.sessions.Current(ctx)
	if !ok {
		return domain.TransferResult{}, session.ErrNoSession
	}
	if req.WalletFrom == 0 {
		req.WalletFrom, _ = c.CurrentWalletID(ctx)
	}
	if req.UserID == "" {
		req.UserID = sess.SubjectID
	}
	result, err := c.Wallets.Transfer(ctx, req)
	if err != nil {
		return domain.TransferResult{}, err
	}
	if _, err := c.loadWallet(ctx, sess.Token); err != nil {
		c.logger.Warn("wallet refresh after transfer failed", zap.Error(err))
		return result, &StaleWalletError{Operation: "transfer", Err: err}
	}
	return result, nil
}

// Transactions lists movements of the cached wallet unless filter names one.
func (c *Client) Transactions(ctx context.Context, filter domain.TransactionFilter) (domain.TransactionPage, error) {
	sess, ok := c.sessions.Current(ctx)
	if !ok {
		return domain.TransactionPage{}, session.ErrNoSession
	}
	if filter.WalletID == 0 {
		filter.WalletID, _ = c.CurrentWalletID(ctx)
	}
	return c.Wallets.ListTransactions(ctx, sess.Token, filter)
}

// Logout ends the session locally. The wallet cache goes with it.
func (c *Client) Logout(ctx context.Context) {
	c.Account.Logout(ctx)
}

// SetTenant stores the tenant sent with calls made outside a login.
func (c *Client) SetTenant(ctx context.Context, tenant string) error {
	return c.sessions.SetTenant(ctx, tenant)
}

// Events returns the wallet change broadcaster.
func (c *Client) Events() *events.WalletBroadcaster { return c.broadcaster }

// Snapshots returns the wallet history log, nil for backends without one.
func (c *Client) Snapshots() *walletsnapshots.WALStore { return c.snapshots }

// Registry returns the registry holding the client metrics.
func (c *Client) Registry() *prometheus.Registry { return c.registry }

// Close releases the stores the client opened.
func (c *Client) Close() error {
	var err error
	if c.snapshots != nil {
		err = multierr.Append(err, c.snapshots.Close())
	}
	if c.ownsStore && c.store != nil {
		err = multierr.Append(err, c.store.Close())
	}
	return err
}
