package app

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/sportsarb/internal/config"
	"github.com/alanyoungcy/sportsarb/internal/crypto"
	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/alanyoungcy/sportsarb/internal/platform/kalshi"
	"github.com/alanyoungcy/sportsarb/internal/platform/paper"
	"github.com/alanyoungcy/sportsarb/internal/platform/polymarket"
	"github.com/alanyoungcy/sportsarb/internal/ratelimit"
)

// venues holds the adapters of both exchanges for one run.
type venues struct {
	kalshi     domain.MarketFetcher
	polymarket domain.MarketFetcher
	// orders is empty in scan mode.
	orders    []domain.OrderClient
	governors []*ratelimit.Governor
}

func governorConfig(l config.VenueLimits) ratelimit.Config {
	return ratelimit.Config{
		MaxCalls:      l.MaxCalls,
		Window:        l.Window.Duration,
		BaseDelay:     l.BaseDelay.Duration,
		MaxDelay:      l.MaxDelay.Duration,
		BackoffFactor: l.BackoffFactor,
		DecayFactor:   l.DecayFactor,
		DecayAfter:    l.DecayAfter,
	}
}

// buildVenues creates one rate governor per venue and the market and order
// adapters behind it. Live mode trades through the exchanges; dry_run trades
// against paper clients seeded from config; scan builds no order clients.
func (a *App) buildVenues(ctx context.Context, deps *Dependencies) (*venues, error) {
	cfg := a.cfg
	govK := ratelimit.NewGovernor(string(domain.VenueKalshi), governorConfig(cfg.RateLimit.Kalshi), deps.VenueWindow, a.logger)
	govP := ratelimit.NewGovernor(string(domain.VenuePolymarket), governorConfig(cfg.RateLimit.Polymarket), deps.VenueWindow, a.logger)
	deps.Metrics.WatchDelay(domain.VenueKalshi, govK.Delay)
	deps.Metrics.WatchDelay(domain.VenuePolymarket, govP.Delay)

	var rsaKey *rsa.PrivateKey
	if cfg.Kalshi.RSAPrivateKeyPath != "" {
		k, err := crypto.LoadRSAKey(cfg.Kalshi.RSAPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("app: kalshi key: %w", err)
		}
		rsaKey = k
	}
	kc, err := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.APIKey, rsaKey, govK)
	if err != nil {
		return nil, fmt.Errorf("app: kalshi client: %w", err)
	}
	kv := kalshi.NewVenue(kc, a.logger)

	signer, err := a.walletSigner()
	if err != nil {
		return nil, err
	}
	var creds *crypto.APICreds
	if cfg.Polymarket.APIKey != "" {
		creds = &crypto.APICreds{
			Key:        cfg.Polymarket.APIKey,
			Secret:     cfg.Polymarket.APISecret,
			Passphrase: cfg.Polymarket.APIPassphrase,
		}
	}
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, creds, govP)
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, govP)
	pv := polymarket.NewVenue(gamma, clob, cfg.Polymarket.BookWorkers, a.logger)

	v := &venues{kalshi: kv, polymarket: pv, governors: []*ratelimit.Governor{govK, govP}}

	switch cfg.Mode {
	case config.ModeLive:
		if creds == nil {
			derived, err := clob.DeriveAPIKey(ctx)
			if err != nil {
				return nil, fmt.Errorf("app: polymarket credentials: %w", err)
			}
			a.logger.Info("derived polymarket api credentials", slog.String("key", derived.String()))
		}
		v.orders = []domain.OrderClient{kv, pv}
	case config.ModeDryRun:
		pc := paper.Config{
			Balance:         cfg.Paper.Balance,
			FillProbability: cfg.Paper.FillProbability,
			Seed:            cfg.Paper.Seed,
		}
		pk := paper.New(domain.VenueKalshi, pc, a.logger)
		pc.Seed++
		pp := paper.New(domain.VenuePolymarket, pc, a.logger)
		v.orders = []domain.OrderClient{pk, pp}
	}
	return v, nil
}

// walletSigner returns nil when no wallet is configured.
func (a *App) walletSigner() (*crypto.Signer, error) {
	w := a.cfg.Wallet
	if w.PrivateKey == "" && w.EncryptedKeyPath == "" {
		return nil, nil
	}
	keyHex, err := crypto.KeySource{
		RawHex:   w.PrivateKey,
		FilePath: w.EncryptedKeyPath,
		Password: w.KeyPassword,
	}.Resolve()
	if err != nil {
		return nil, fmt.Errorf("app: wallet: %w", err)
	}
	exchange := crypto.DefaultExchange
	if a.cfg.Polymarket.ExchangeAddress != "" {
		if !common.IsHexAddress(a.cfg.Polymarket.ExchangeAddress) {
			return nil, fmt.Errorf("app: polymarket exchange address %q is not a hex address", a.cfg.Polymarket.ExchangeAddress)
		}
		exchange = common.HexToAddress(a.cfg.Polymarket.ExchangeAddress)
	}
	signer, err := crypto.NewSigner(keyHex, int64(a.cfg.Polymarket.ChainID), exchange)
	if err != nil {
		return nil, fmt.Errorf("app: wallet signer: %w", err)
	}
	a.logger.Info("wallet loaded", slog.String("address", signer.Address().Hex()))
	return signer, nil
}
