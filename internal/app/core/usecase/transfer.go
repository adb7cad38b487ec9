package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// Transfer 由 userID 的 FromAccountID 轉帳到 ToUserID 的 ToAccountID
//
// 流程: 驗證幣別 -> 提款 -> 存款，兩筆異動要嘛都生效要嘛都不生效
//   - store 實作 FundsMover 時，兩端在同一個原子步驟內完成
//   - 否則先提款再存款，存款失敗時先補償退回來源帳戶再回傳錯誤
//
// 回傳:
//
//	error: 驗證、提款、存款的錯誤原樣往上傳
func (c *CoreUseCase) Transfer(ctx context.Context, userID int64, req domain.TransferRequest) error {
	if err := c.ValidateCurrency(ctx, req.FromAccountID, req.ToAccountID); err != nil {
		return err
	}

	mover, ok := c.store.(FundsMover)
	if !ok {
		return c.transferWithCompensation(ctx, userID, req)
	}

	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	err := mover.Move(ctx, MoveRequest{
		FromUserID:    userID,
		FromAccountID: req.FromAccountID,
		ToUserID:      req.ToUserID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
	})
	if err != nil {
		return err
	}
	c.logTransfer(userID, req)
	return nil
}

func (c *CoreUseCase) transferWithCompensation(ctx context.Context, userID int64, req domain.TransferRequest) error {
	if _, err := c.Withdraw(ctx, userID, req.FromAccountID, req.Amount); err != nil {
		return err
	}

	_, depositErr := c.Deposit(ctx, req.ToUserID, req.ToAccountID, req.Amount)
	if depositErr == nil {
		c.logTransfer(userID, req)
		return nil
	}

	// 補償不受呼叫端取消影響，錢不能消失
	_, compErr := c.store.AdjustBalance(context.WithoutCancel(ctx), userID, req.FromAccountID, req.Amount)
	if compErr != nil {
		c.logger.Error("transfer compensation failed",
			zap.Int64("user_id", userID),
			zap.Int64("from_account_id", req.FromAccountID),
			zap.Int64("amount", req.Amount),
			zap.NamedError("deposit_error", depositErr),
			zap.Error(compErr),
		)
		return errors.Join(depositErr, fmt.Errorf("compensate withdrawal from account %d: %w", req.FromAccountID, compErr))
	}

	c.logger.Warn("transfer compensated",
		zap.Int64("user_id", userID),
		zap.Int64("from_account_id", req.FromAccountID),
		zap.Int64("to_account_id", req.ToAccountID),
		zap.Int64("amount", req.Amount),
		zap.Error(depositErr),
	)
	return depositErr
}

func (c *CoreUseCase) logTransfer(userID int64, req domain.TransferRequest) {
	c.logger.Debug("transfer completed",
		zap.Int64("user_id", userID),
		zap.Int64("from_account_id", req.FromAccountID),
		zap.Int64("to_user_id", req.ToUserID),
		zap.Int64("to_account_id", req.ToAccountID),
		zap.Int64("amount", req.Amount),
	)
}
