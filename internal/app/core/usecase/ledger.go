package usecase

import (
	"context"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
)

// AccountStore 是帳戶儲存的介面，帳本以它為唯一事實來源，不在呼叫之間快取餘額
type AccountStore interface {
	// FindByID 以帳戶 ID 查詢，找不到回傳 *domain.AccountNotFoundError
	FindByID(ctx context.Context, accountID int64) (*domain.Account, error)
	// FindByUserAndID 以 (使用者, 帳戶) 單次查詢
	FindByUserAndID(ctx context.Context, userID, accountID int64) (*domain.Account, error)
	// AdjustBalance 原子地將餘額加上 delta (可為負)，結果為負時回傳 *domain.InsufficientFundsError 且不修改
	AdjustBalance(ctx context.Context, userID, accountID, delta int64) (*domain.Account, error)
}

// MoveRequest 單次原子搬移的雙方與金額
type MoveRequest struct {
	FromUserID    int64
	FromAccountID int64
	ToUserID      int64
	ToAccountID   int64
	Amount        int64
}

// FundsMover 由能在單一原子步驟內完成兩端異動的 store 實作
//
// 錯誤優先順序需與「先提款再存款」一致:
// 來源不存在 -> 餘額不足 -> 目的不存在
type FundsMover interface {
	Move(ctx context.Context, req MoveRequest) error
}

// AccountOpener 由支援開戶的 store 實作
type AccountOpener interface {
	// OpenAccount 建立餘額為 0 的帳戶，同使用者同幣別已存在時回傳 domain.ErrAccountAlreadyExists
	OpenAccount(ctx context.Context, userID int64, currency domain.Currency) (*domain.Account, error)
}
