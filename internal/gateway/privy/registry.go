package privy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/tradebot/core/logger"
)

// Registry remembers which wallet belongs to which chat.
type Registry interface {
	Lookup(ctx context.Context, chatID int64) (Wallet, bool, error)
	Save(ctx context.Context, chatID int64, w Wallet) error
}

type sqlRegistry struct {
	db *sqlx.DB
}

// NewSQLRegistry stores wallets in the wallets table.
func NewSQLRegistry(db *sqlx.DB) Registry {
	return &sqlRegistry{db: db}
}

func (r *sqlRegistry) Lookup(ctx context.Context, chatID int64) (Wallet, bool, error) {
	var w Wallet
	err := r.db.GetContext(ctx, &w, `SELECT wallet_id, address FROM wallets WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, false, nil
	}
	if err != nil {
		return Wallet{}, false, fmt.Errorf("wallets: lookup: %w", err)
	}
	return w, true, nil
}

func (r *sqlRegistry) Save(ctx context.Context, chatID int64, w Wallet) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (chat_id, wallet_id, address)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET
			wallet_id = EXCLUDED.wallet_id,
			address = EXCLUDED.address,
			updated_at = now()`,
		chatID, w.ID, w.Address)
	if err != nil {
		return fmt.Errorf("wallets: save: %w", err)
	}
	return nil
}

type memoryRegistry struct {
	mu      sync.RWMutex
	wallets map[int64]Wallet
}

// NewMemoryRegistry keeps wallets in process.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{wallets: make(map[int64]Wallet)}
}

func (r *memoryRegistry) Lookup(_ context.Context, chatID int64) (Wallet, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[chatID]
	return w, ok, nil
}

func (r *memoryRegistry) Save(_ context.Context, chatID int64, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[chatID] = w
	return nil
}

// Custody resolves wallets through the registry first and Privy second.
type Custody struct {
	client   *Client
	registry Registry
}

func NewCustody(client *Client, registry Registry) *Custody {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	return &Custody{client: client, registry: registry}
}

// GetOrCreateWallet returns the chat's wallet, provisioning it on first use.
func (c *Custody) GetOrCreateWallet(ctx context.Context, chatID int64) (Wallet, error) {
	if w, ok, err := c.registry.Lookup(ctx, chatID); err != nil {
		logger.Warn(ctx, "gw.privy", "wallet.lookup",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	} else if ok {
		return w, nil
	}

	w, err := c.client.ResolveWallet(ctx, chatID)
	if err != nil {
		return Wallet{}, err
	}
	if err := c.registry.Save(ctx, chatID, w); err != nil {
		logger.Warn(ctx, "gw.privy", "wallet.save",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, "gw.privy", "wallet.resolve",
		slog.String("wallet", w.Address),
	)
	return w, nil
}

// SignTransaction signs through Privy.
func (c *Custody) SignTransaction(ctx context.Context, walletID, txBase64 string) (string, error) {
	return c.client.SignTransaction(ctx, walletID, txBase64)
}
