package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount 金額必須大於 0
	ErrInvalidAmount = errors.New("Amount should be more than 0")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrWrongCurrency 轉帳雙方幣別不同
	ErrWrongCurrency = errors.New("Account currencies should be same")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBalanceOverflow 存入後餘額超過可表示的上限
	ErrBalanceOverflow = errors.New("Balance would exceed the maximum amount")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrUnknownCurrency 不支援的幣別
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLedgerStopped 帳本引擎已停止
	ErrLedgerStopped = errors.New("ledger stopped")
)

// AccountNotFoundError 指出是哪一個帳戶找不到
// UserID 為 0 代表僅以帳戶 ID 查詢
type AccountNotFoundError struct {
	AccountID int64
	UserID    int64
}

// NewAccountNotFoundError 建立 AccountNotFoundError
func NewAccountNotFoundError(userID, accountID int64) *AccountNotFoundError {
	return &AccountNotFoundError{AccountID: accountID, UserID: userID}
}

func (e *AccountNotFoundError) Error() string {
	if e.UserID == 0 {
		return fmt.Sprintf("Account %d not found", e.AccountID)
	}
	return fmt.Sprintf("Account %d of user %d not found", e.AccountID, e.UserID)
}

// Is 讓 errors.Is(err, ErrAccountNotFound) 成立
func (e *AccountNotFoundError) Is(target error) bool {
	return target == ErrAccountNotFound
}

// InsufficientFundsError 提款金額超過餘額
// 訊息格式固定為 "Cannot withdraw {amount} {currency}"
type InsufficientFundsError struct {
	Amount   int64
	Currency Currency
}

// NewInsufficientFundsError 建立 InsufficientFundsError
func NewInsufficientFundsError(amount int64, currency Currency) *InsufficientFundsError {
	return &InsufficientFundsError{Amount: amount, Currency: currency}
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Cannot withdraw %d %s", e.Amount, e.Currency)
}

// Is 讓 errors.Is(err, ErrInsufficientFunds) 成立
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
