package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// Deposit 存款
//
// 參數:
//
//	ctx: 上下文
//	userID: 已驗證的使用者
//	accountID: 帳戶 ID
//	amount: 金額，必須大於 0 (檢查發生在存取 store 之前)
//
// 回傳:
//
//	domain.AccountSnapshot: 存款後的帳戶快照
//	error: domain.ErrInvalidAmount / domain.ErrAccountNotFound
func (c *CoreUseCase) Deposit(ctx context.Context, userID, accountID, amount int64) (domain.AccountSnapshot, error) {
	if amount <= 0 {
		return domain.AccountSnapshot{}, domain.ErrInvalidAmount
	}
	return c.adjust(ctx, domain.TransactionTypeDeposit, userID, accountID, amount)
}

// Withdraw 提款
// 金額等於餘額時成功且餘額歸 0；金額為 0 一律拒絕
//
// 回傳:
//
//	domain.AccountSnapshot: 提款後的帳戶快照
//	error: domain.ErrInvalidAmount / domain.ErrAccountNotFound / *domain.InsufficientFundsError
func (c *CoreUseCase) Withdraw(ctx context.Context, userID, accountID, amount int64) (domain.AccountSnapshot, error) {
	if amount <= 0 {
		return domain.AccountSnapshot{}, domain.ErrInvalidAmount
	}
	return c.adjust(ctx, domain.TransactionTypeWithdraw, userID, accountID, -amount)
}

func (c *CoreUseCase) adjust(ctx context.Context, txType domain.TransactionType, userID, accountID, delta int64) (domain.AccountSnapshot, error) {
	account, err := c.store.AdjustBalance(ctx, userID, accountID, delta)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	c.logger.Debug("balance adjusted",
		zap.Stringer("type", txType),
		zap.Int64("user_id", userID),
		zap.Int64("account_id", accountID),
		zap.Int64("delta", delta),
		zap.Int64("balance", account.Balance),
	)
	return account.Snapshot(), nil
}
