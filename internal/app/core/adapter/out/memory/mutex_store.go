package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

// slot 單一帳戶與保護它的鎖
type slot struct {
	mu      sync.Mutex
	account domain.Account
}

// MutexStore 是一個以帳戶為單位加鎖的記憶體帳本
//
// 結構:
//
//	slots: 帳戶 ID -> slot，map 本身由 mu 保護，帳戶內容由 slot.mu 保護
//	owners: (使用者, 幣別) -> 帳戶 ID，開戶時檢查重複
//	seq: WAL 序號
//	wal: Write-Ahead Log 實例，nil 代表不落地
//
// 不同帳戶的異動可以同時進行；轉帳依帳戶 ID 遞增順序取得兩把鎖
type MutexStore struct {
	mu     sync.RWMutex
	slots  map[int64]*slot
	owners map[ownerKey]int64
	nextID int64

	seq    atomic.Uint64
	wal    *wal.WAL
	logger *zap.Logger
}

// NewMutexStore 建立一個新的 MutexStore 實例
//
// 參數:
//
//	accounts: 初始帳戶資料 (例如由 MySQL 預載)
//	w: Write-Ahead Log 實例，可為 nil
//	logger: 日誌，可為 nil
//
// 回傳:
//
//	*MutexStore: MutexStore 實例
//	error: 初始化錯誤 (如帳戶 ID 重複、WAL 恢復失敗)
func NewMutexStore(accounts []domain.Account, w *wal.WAL, logger *zap.Logger) (*MutexStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MutexStore{
		slots:  make(map[int64]*slot, len(accounts)),
		owners: make(map[ownerKey]int64, len(accounts)),
		nextID: 1,
		wal:    w,
		logger: logger.Named("mutex_store"),
	}
	for _, account := range accounts {
		if err := s.insert(account); err != nil {
			return nil, err
		}
	}

	lastSeq, count, err := recoverFromWAL(w, s)
	if err != nil {
		s.logger.Error("wal recovery failed", zap.Error(err))
		return nil, err
	}
	s.seq.Store(lastSeq)
	if w != nil {
		s.logger.Info("wal recovered",
			zap.String("path", w.Path()),
			zap.Int("records", count),
			zap.Int("accounts", len(s.slots)),
		)
	}
	return s, nil
}

func (s *MutexStore) get(accountID int64) (*domain.Account, bool) {
	sl, ok := s.slots[accountID]
	if !ok {
		return nil, false
	}
	return &sl.account, true
}

// insert 呼叫端需持有 s.mu 寫鎖，或在建構期間
func (s *MutexStore) insert(account domain.Account) error {
	if _, ok := s.slots[account.ID]; ok {
		return fmt.Errorf("duplicate account id %d", account.ID)
	}
	s.slots[account.ID] = &slot{account: account}
	key := ownerKey{userID: account.UserID, currency: account.Currency}
	if _, ok := s.owners[key]; !ok {
		s.owners[key] = account.ID
	}
	if account.ID >= s.nextID {
		s.nextID = account.ID + 1
	}
	return nil
}

func (s *MutexStore) lookup(accountID int64) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[accountID]
}

// FindByID 以帳戶 ID 查詢，回傳副本
func (s *MutexStore) FindByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	sl := s.lookup(accountID)
	if sl == nil {
		return nil, domain.NewAccountNotFoundError(0, accountID)
	}
	sl.mu.Lock()
	account := sl.account
	sl.mu.Unlock()
	return &account, nil
}

// FindByUserAndID 以 (使用者, 帳戶) 查詢，帳戶不屬於該使用者視為不存在
func (s *MutexStore) FindByUserAndID(ctx context.Context, userID, accountID int64) (*domain.Account, error) {
	sl := s.lookup(accountID)
	if sl == nil {
		return nil, domain.NewAccountNotFoundError(userID, accountID)
	}
	sl.mu.Lock()
	account := sl.account
	sl.mu.Unlock()
	if !account.OwnedBy(userID) {
		return nil, domain.NewAccountNotFoundError(userID, accountID)
	}
	return &account, nil
}

// AdjustBalance 在帳戶鎖內完成 檢查 -> WAL -> 套用
//
// 參數:
//
//	delta: 正數為存款，負數為提款
//
// 回傳:
//
//	*domain.Account: 異動後的帳戶副本
//	error: 帳戶不存在 / 餘額不足 / WAL 寫入失敗，失敗時餘額不變
func (s *MutexStore) AdjustBalance(ctx context.Context, userID, accountID, delta int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sl := s.lookup(accountID)
	if sl == nil {
		return nil, domain.NewAccountNotFoundError(userID, accountID)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if !sl.account.OwnedBy(userID) {
		return nil, domain.NewAccountNotFoundError(userID, accountID)
	}
	if err := sl.account.CanApply(delta); err != nil {
		return nil, err
	}

	tran := adjustmentTransaction(accountID, delta)
	tran.Sequence = s.seq.Add(1)
	if err := journal(s.wal, tran); err != nil {
		s.logger.Error("wal write failed", zap.Uint64("seq", tran.Sequence), zap.Error(err))
		return nil, err
	}
	if err := sl.account.Apply(delta); err != nil {
		return nil, err
	}
	account := sl.account
	return &account, nil
}

// Move 在同一個臨界區內完成轉帳兩端
// 依帳戶 ID 遞增順序加鎖，轉給自己時只鎖一次
func (s *MutexStore) Move(ctx context.Context, req usecase.MoveRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.lookup(req.FromAccountID)
	if from == nil {
		return domain.NewAccountNotFoundError(req.FromUserID, req.FromAccountID)
	}
	to := s.lookup(req.ToAccountID)
	if to == nil {
		// 目的不存在時，來源的錯誤仍然優先
		from.mu.Lock()
		defer from.mu.Unlock()
		if err := checkSource(&from.account, req); err != nil {
			return err
		}
		return domain.NewAccountNotFoundError(req.ToUserID, req.ToAccountID)
	}

	tran := domain.NewTransaction(domain.TransactionTypeTransfer, req.FromAccountID, req.ToAccountID, req.Amount)
	for _, id := range tran.GetLockIDs() {
		sl := from
		if id == req.ToAccountID {
			sl = to
		}
		sl.mu.Lock()
		defer sl.mu.Unlock()
	}

	if err := checkSource(&from.account, req); err != nil {
		return err
	}
	if !to.account.OwnedBy(req.ToUserID) {
		return domain.NewAccountNotFoundError(req.ToUserID, req.ToAccountID)
	}
	if from != to {
		if err := to.account.CanApply(req.Amount); err != nil {
			return err
		}
	}

	tran.Sequence = s.seq.Add(1)
	if err := journal(s.wal, tran); err != nil {
		s.logger.Error("wal write failed", zap.Uint64("seq", tran.Sequence), zap.Error(err))
		return err
	}
	if err := from.account.Withdraw(req.Amount); err != nil {
		return err
	}
	return to.account.Deposit(req.Amount)
}

func checkSource(from *domain.Account, req usecase.MoveRequest) error {
	if !from.OwnedBy(req.FromUserID) {
		return domain.NewAccountNotFoundError(req.FromUserID, req.FromAccountID)
	}
	return from.CanApply(-req.Amount)
}

// OpenAccount 建立餘額為 0 的帳戶
func (s *MutexStore) OpenAccount(ctx context.Context, userID int64, currency domain.Currency) (*domain.Account, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownCurrency, uint8(currency))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[ownerKey{userID: userID, currency: currency}]; ok {
		return nil, domain.ErrAccountAlreadyExists
	}

	account := domain.NewAccount(s.nextID, userID, currency, 0)
	tran := domain.NewOpenTransaction(account)
	tran.Sequence = s.seq.Add(1)
	if err := journal(s.wal, tran); err != nil {
		s.logger.Error("wal write failed", zap.Uint64("seq", tran.Sequence), zap.Error(err))
		return nil, err
	}
	if err := s.insert(*account); err != nil {
		return nil, err
	}
	return account, nil
}

// Accounts 回傳所有帳戶副本 (依 ID 排序)
// 每個帳戶各自一致，但不是跨帳戶的時間點快照
func (s *MutexStore) Accounts(ctx context.Context) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	slots := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	out := make([]domain.Account, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		out = append(out, sl.account)
		sl.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ usecase.AccountStore  = (*MutexStore)(nil)
	_ usecase.FundsMover    = (*MutexStore)(nil)
	_ usecase.AccountOpener = (*MutexStore)(nil)
)
