package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層
// 驗證帳戶、單一帳戶存提款，以及組合兩者的轉帳
type CoreUseCase struct {
	store  AccountStore
	logger *zap.Logger
}

func NewCoreUseCase(store AccountStore, logger *zap.Logger) *CoreUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoreUseCase{
		store:  store,
		logger: logger.Named("core"),
	}
}

// GetAccount 取得使用者的帳戶快照
func (c *CoreUseCase) GetAccount(ctx context.Context, userID, accountID int64) (domain.AccountSnapshot, error) {
	account, err := c.store.FindByUserAndID(ctx, userID, accountID)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	return account.Snapshot(), nil
}

// OpenDefaultAccounts 為新使用者每個支援幣別各開一個餘額為 0 的帳戶
func (c *CoreUseCase) OpenDefaultAccounts(ctx context.Context, userID int64) ([]domain.AccountSnapshot, error) {
	opener, ok := c.store.(AccountOpener)
	if !ok {
		return nil, fmt.Errorf("store %T cannot open accounts", c.store)
	}

	currencies := domain.Currencies()
	snapshots := make([]domain.AccountSnapshot, 0, len(currencies))
	for _, currency := range currencies {
		account, err := opener.OpenAccount(ctx, userID, currency)
		if err != nil {
			return nil, fmt.Errorf("open %s account for user %d: %w", currency, userID, err)
		}
		snapshots = append(snapshots, account.Snapshot())
	}

	c.logger.Info("default accounts opened",
		zap.Int64("user_id", userID),
		zap.Int("count", len(snapshots)),
	)
	return snapshots, nil
}
