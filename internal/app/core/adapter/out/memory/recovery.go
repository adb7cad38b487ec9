package memory

import (
	"encoding/json"
	"fmt"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

// ownerKey 同一使用者同一幣別只能有一個帳戶
type ownerKey struct {
	userID   int64
	currency domain.Currency
}

// accountIndex 是 WAL 重放時需要的最小帳戶操作，兩種 store 各自實作
// 重放只在建構期間的單一 goroutine 進行，不需要加鎖
type accountIndex interface {
	get(accountID int64) (*domain.Account, bool)
	insert(account domain.Account) error
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
//
// 回傳:
//
//	lastSeq: 已重放的最大序號，之後的交易從 lastSeq+1 開始
//	count: 重放筆數
//	error: 解碼或重放失敗
func recoverFromWAL(w *wal.WAL, idx accountIndex) (lastSeq uint64, count int, err error) {
	if w == nil {
		return 0, 0, nil
	}
	err = w.ReadAll(func(jsonRaw []byte) error {
		var tran domain.Transaction
		if err := json.Unmarshal(jsonRaw, &tran); err != nil {
			return fmt.Errorf("decode wal record: %w", err)
		}
		if err := restoreTransaction(idx, &tran); err != nil {
			return fmt.Errorf("replay wal record seq=%d type=%s: %w", tran.Sequence, tran.Type, err)
		}
		lastSeq = max(lastSeq, tran.Sequence)
		count++
		return nil
	})
	return lastSeq, count, err
}

// restoreTransaction 恢復單筆交易至記憶體 (不寫入 WAL)
// WAL 只記錄已成功套用的異動，因此重放時任何錯誤都代表檔案與初始帳戶不一致
func restoreTransaction(idx accountIndex, tran *domain.Transaction) error {
	switch tran.Type {
	case domain.TransactionTypeOpen:
		return idx.insert(domain.Account{
			ID:       tran.To,
			UserID:   tran.UserID,
			Currency: tran.Currency,
		})
	case domain.TransactionTypeDeposit:
		to, ok := idx.get(tran.To)
		if !ok {
			return domain.NewAccountNotFoundError(0, tran.To)
		}
		return to.Deposit(tran.Amount)
	case domain.TransactionTypeWithdraw:
		from, ok := idx.get(tran.From)
		if !ok {
			return domain.NewAccountNotFoundError(0, tran.From)
		}
		return from.Withdraw(tran.Amount)
	case domain.TransactionTypeTransfer:
		from, ok := idx.get(tran.From)
		if !ok {
			return domain.NewAccountNotFoundError(0, tran.From)
		}
		to, ok := idx.get(tran.To)
		if !ok {
			return domain.NewAccountNotFoundError(0, tran.To)
		}
		if err := from.Withdraw(tran.Amount); err != nil {
			return err
		}
		return to.Deposit(tran.Amount)
	default:
		return fmt.Errorf("unknown transaction type %d", tran.Type)
	}
}

// journal 在異動生效前寫入 WAL
func journal(w *wal.WAL, tran *domain.Transaction) error {
	if w == nil {
		return nil
	}
	if err := w.Write(tran); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
	}
	return nil
}

// adjustmentTransaction 將帶正負號的 delta 轉成存款或提款紀錄
func adjustmentTransaction(accountID, delta int64) *domain.Transaction {
	if delta < 0 {
		return domain.NewTransaction(domain.TransactionTypeWithdraw, accountID, 0, -delta)
	}
	return domain.NewTransaction(domain.TransactionTypeDeposit, 0, accountID, delta)
}
