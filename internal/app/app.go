// Package app is the composition root: it builds every collaborator from
// configuration and hands the Telegram runtime its routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/tradebot/core/bootstrap"
	corecmd "github.com/m3rciful/tradebot/core/cmd"
	"github.com/m3rciful/tradebot/core/logger"
	coretelegram "github.com/m3rciful/tradebot/core/telegram"
	"github.com/m3rciful/tradebot/core/telegram/state"
	"github.com/m3rciful/tradebot/internal/bot"
	"github.com/m3rciful/tradebot/internal/config"
	"github.com/m3rciful/tradebot/internal/estimator"
	"github.com/m3rciful/tradebot/internal/flow"
	"github.com/m3rciful/tradebot/internal/gateway/helius"
	"github.com/m3rciful/tradebot/internal/gateway/jupiter"
	"github.com/m3rciful/tradebot/internal/gateway/privy"
	"github.com/m3rciful/tradebot/internal/httpx"
	"github.com/m3rciful/tradebot/internal/ledger"
	"github.com/m3rciful/tradebot/internal/metrics"
	"github.com/m3rciful/tradebot/internal/router"
	"github.com/m3rciful/tradebot/internal/session"
	"github.com/m3rciful/tradebot/internal/tokencache"
	"github.com/m3rciful/tradebot/migrations"

	tele "gopkg.in/telebot.v4"
)

const (
	privyTimeout  = 15 * time.Second
	heliusTimeout = 5 * time.Second
)

type App struct {
	cfg       *config.Config
	db        *sqlx.DB
	cache     *tokencache.Store
	metrics   *metrics.Metrics
	messenger *bot.Messenger
	adapter   *bot.Adapter
}

// LoadConfig satisfies core/cmd.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	return config.Load(path)
}

// Bootstrap satisfies core/cmd.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(cfg)
}

// New runs the infrastructure pipeline and wires the bot.
func New(cfg *config.Config) (*App, error) {
	infra, err := bootstrap.Run(bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.Database,
		Migrations: migrations.FS,
	})
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:       cfg,
		db:        infra.DB,
		metrics:   metrics.New(),
		messenger: bot.NewMessenger(),
	}
	if err := a.wire(context.Background()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg

	store, err := a.sessionStore(ctx)
	if err != nil {
		return err
	}

	jup := jupiter.New(
		httpx.New(cfg.JupiterTimeout(), cfg.Jupiter.Retries, "gw.jupiter"),
		cfg.Jupiter.APIKey,
		jupiter.Endpoints{
			Ultra:   cfg.Jupiter.UltraURL,
			Trigger: cfg.Jupiter.TriggerURL,
			Tokens:  cfg.Jupiter.TokensURL,
			Price:   cfg.Jupiter.PriceURL,
		},
	)

	privyClient, err := privy.New(httpx.New(privyTimeout, 2, "gw.privy"), privy.Config{
		AppID:            cfg.Privy.AppID,
		AppSecret:        cfg.Privy.AppSecret,
		AuthorizationKey: cfg.Privy.AuthorizationKey,
		SignerID:         cfg.Privy.SignerID,
	})
	if err != nil {
		return fmt.Errorf("app: privy: %w", err)
	}
	wallets := privy.NewMemoryRegistry()
	if a.db != nil {
		wallets = privy.NewSQLRegistry(a.db)
	}
	custody := privy.NewCustody(privyClient, wallets)

	node := ledger.Dial(cfg.Solana.RPCURL, ledger.Options{
		Commitment:     rpc.CommitmentType(cfg.Solana.Commitment),
		ConfirmTimeout: cfg.ConfirmTimeout(),
	})
	fees := helius.New(httpx.New(heliusTimeout, 1, "gw.helius"), cfg.Helius.URL, cfg.Helius.APIKey)

	a.cache, err = tokencache.Open(cfg.Cache.Path, cfg.Cache.LockPath)
	if err != nil {
		return fmt.Errorf("app: token cache: %w", err)
	}

	engine := flow.New(flow.Deps{
		Store:     store,
		Custody:   custody,
		Trading:   jup,
		Directory: tokencache.NewDirectory(jup, a.cache, cfg.TokenTTL()),
		Ledger:    node,
		Estimator: estimator.New(node, fees, a.metrics),
		Metrics:   a.metrics,
		Chat:      a.messenger,
	})

	r := router.New(store, engine, a.messenger, custody, a.metrics)
	a.adapter = bot.NewAdapter(r, store, a.messenger)
	return nil
}

func (a *App) sessionStore(ctx context.Context) (session.Store, error) {
	opts := session.StoreOptions(a.cfg.SessionTTL(), nil)
	if a.cfg.Session.Backend == config.SessionBackendPostgres {
		if a.db == nil {
			return nil, errors.New("app: postgres sessions need a database")
		}
		return state.NewPostgresStore[session.State](ctx, a.db, opts)
	}
	return state.NewMemoryStore[session.State](opts), nil
}

// TelegramRunOptions satisfies core/cmd.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	reg, err := a.adapter.Registry()
	if err != nil {
		return coretelegram.RunOptions{}, err
	}

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(core, onLimited),
		Routes:      a.adapter.Routes(reg, core.Telegram.AdminID),
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	a.messenger.Bind(rt.Bot, rt.Dispatcher)

	if addr := a.cfg.Ops.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.metrics); err != nil {
				logger.Error(ctx, "ops", "ops.serve",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}()
	}
	return nil
}

func (a *App) stop(context.Context, coretelegram.Runtime) error {
	a.close()
	return nil
}

func (a *App) close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Too many requests, slow down."})
	}
	return nil
}
