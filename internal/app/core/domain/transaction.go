package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType 交易類型
// 為了極致節省記憶體，使用 uint8
type TransactionType uint8

const (
	// 存款
	TransactionTypeDeposit TransactionType = 1
	// 提款
	TransactionTypeWithdraw TransactionType = 2
	// 轉帳
	TransactionTypeTransfer TransactionType = 3
	// 開戶
	TransactionTypeOpen TransactionType = 4
)

func (t TransactionType) String() string {
	switch t {
	case TransactionTypeDeposit:
		return "deposit"
	case TransactionTypeWithdraw:
		return "withdraw"
	case TransactionTypeTransfer:
		return "transfer"
	case TransactionTypeOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Transaction 已套用的帳務異動，作為 WAL 的一筆紀錄
// 注意欄位排序以避免 Padding
type Transaction struct {
	// Sequence: 全局唯一的順序號 (由帳本分配，1, 2, 3...)
	// 用於 WAL 重放確保順序一致
	Sequence uint64 `json:"seq"`
	// From, To: 帳戶 ID (存款只有 To，提款只有 From)
	From int64 `json:"from,omitempty"`
	To   int64 `json:"to,omitempty"`
	// Amount: 金額 (minor units)
	Amount int64 `json:"amount,omitempty"`
	// UserID: 開戶時的擁有者
	UserID int64 `json:"user_id,omitempty"`
	// CreatedAt: 交易時間 (UnixNano)
	CreatedAt int64 `json:"created_at"`
	// TransactionID: 追蹤號 (UUID)
	TransactionID uuid.UUID `json:"id"`
	// Currency: 開戶時的幣別
	Currency Currency `json:"currency,omitempty"`
	// Type: 放到最後面，利用 Padding 空間
	Type TransactionType `json:"type"`
}

// NewTransaction 建立一筆帶有追蹤號與時間的交易
func NewTransaction(txType TransactionType, from, to, amount int64) *Transaction {
	return &Transaction{
		From:          from,
		To:            to,
		Amount:        amount,
		CreatedAt:     time.Now().UnixNano(),
		TransactionID: uuid.New(),
		Type:          txType,
	}
}

// NewOpenTransaction 建立一筆開戶紀錄
func NewOpenTransaction(account *Account) *Transaction {
	tran := NewTransaction(TransactionTypeOpen, 0, account.ID, 0)
	tran.UserID = account.UserID
	tran.Currency = account.Currency
	return tran
}

// GetLockIDs 回傳需要鎖定的帳號 ID，並確保遞增順序以避免死鎖
// 轉給自己時只回傳一個 ID
func (t *Transaction) GetLockIDs() (ids []int64) {
	// 預先宣告一個容量為 2 的 slice，避免多次分配
	ids = make([]int64, 0, 2)
	switch t.Type {
	case TransactionTypeTransfer:
		switch {
		case t.From == t.To:
			ids = append(ids, t.From)
		case t.From < t.To:
			ids = append(ids, t.From, t.To)
		default:
			ids = append(ids, t.To, t.From)
		}
	case TransactionTypeDeposit, TransactionTypeOpen:
		ids = append(ids, t.To)
	case TransactionTypeWithdraw:
		ids = append(ids, t.From)
	}
	return ids
}
