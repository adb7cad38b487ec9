package domain

import "math"

// Account 帳戶
// 金額以最小貨幣單位 (minor units) 的 int64 表示，Balance 任何時候都不可為負
type Account struct {
	ID       int64
	UserID   int64
	Currency Currency
	Balance  int64
}

// AccountSnapshot 異動後回傳給呼叫端的帳戶快照 (不可變)
type AccountSnapshot struct {
	ID       int64    `json:"id"`
	Currency Currency `json:"currency"`
	Amount   int64    `json:"amount"`
}

// TransferRequest 轉帳請求，只存在於單次轉帳呼叫期間
type TransferRequest struct {
	FromAccountID int64 `json:"fromAccountId"`
	ToUserID      int64 `json:"toUserId"`
	ToAccountID   int64 `json:"toAccountId"`
	Amount        int64 `json:"amount"`
}

func NewAccount(id, userID int64, currency Currency, balance int64) *Account {
	return &Account{
		ID:       id,
		UserID:   userID,
		Currency: currency,
		Balance:  balance,
	}
}

// OwnedBy 帳戶是否屬於該使用者
func (a *Account) OwnedBy(userID int64) bool {
	return a.UserID == userID
}

// Snapshot 取得目前狀態的快照
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:       a.ID,
		Currency: a.Currency,
		Amount:   a.Balance,
	}
}

// Deposit 存款，結果超過 int64 上限時回傳 ErrBalanceOverflow 且不修改
func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > math.MaxInt64-a.Balance {
		return ErrBalanceOverflow
	}
	a.Balance += amount
	return nil
}

// Withdraw 提款，金額等於餘額時允許 (結果為 0)
func (a *Account) Withdraw(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > a.Balance {
		return NewInsufficientFundsError(amount, a.Currency)
	}
	a.Balance -= amount
	return nil
}

// CanApply 檢查帶正負號的異動是否會讓餘額變負，不修改帳戶
//
// 參數:
//
//	delta: 正數為存款，負數為提款
//
// 回傳:
//
//	error: delta 為 0 回傳 ErrInvalidAmount；餘額不足回傳 *InsufficientFundsError；
//	存入後超過上限回傳 ErrBalanceOverflow
func (a *Account) CanApply(delta int64) error {
	switch {
	case delta == 0:
		return ErrInvalidAmount
	case delta < 0 && -delta > a.Balance:
		return NewInsufficientFundsError(-delta, a.Currency)
	case delta > 0 && delta > math.MaxInt64-a.Balance:
		return ErrBalanceOverflow
	}
	return nil
}

// Apply 套用帶正負號的異動
func (a *Account) Apply(delta int64) error {
	if delta < 0 {
		return a.Withdraw(-delta)
	}
	return a.Deposit(delta)
}
