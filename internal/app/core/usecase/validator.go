package usecase

import (
	"context"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// ValidateCurrency 確認兩個帳戶都存在且幣別相同
//
// 參數:
//
//	ctx: 上下文
//	accountIDA: 先查詢的帳戶，不存在時不保證會查詢 B
//	accountIDB: 後查詢的帳戶
//
// 回傳:
//
//	error: domain.ErrAccountNotFound (指出缺少的帳戶) 或 domain.ErrWrongCurrency
func (c *CoreUseCase) ValidateCurrency(ctx context.Context, accountIDA, accountIDB int64) error {
	accountA, err := c.store.FindByID(ctx, accountIDA)
	if err != nil {
		return err
	}
	accountB, err := c.store.FindByID(ctx, accountIDB)
	if err != nil {
		return err
	}
	if accountA.Currency != accountB.Currency {
		return domain.ErrWrongCurrency
	}
	return nil
}
