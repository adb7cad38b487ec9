package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

// DefaultQueueSize 輸送帶預設容量
const DefaultQueueSize = 1000

// commandResult 單一指令的執行結果
type commandResult struct {
	account domain.Account
	err     error
}

// commandRequest 指令請求包裝 channel，讓呼叫端可以等待結果
type commandRequest struct {
	exec   func() (domain.Account, error)
	result chan commandResult // 讓 submit 等這個 channel
}

// SequencedStore 是單一寫入者 (LMAX 風格) 的記憶體帳本
// 所有讀寫都排進同一條輸送帶，由 run loop 依序執行，狀態本身不需要鎖
//
// 生命週期: NewSequencedStore -> Start(ctx) -> ctx 取消 -> 排空輸送帶 -> Done() 關閉
// 停止後的呼叫回傳 domain.ErrLedgerStopped
type SequencedStore struct {
	accounts map[int64]*domain.Account
	owners   map[ownerKey]int64
	nextID   int64
	seq      uint64
	// Write-Ahead Logging
	wal    *wal.WAL
	logger *zap.Logger

	// 輸送帶 負責接收指令
	commands chan *commandRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool

	// gate 保護 closed；送件者持讀鎖，停止時取寫鎖確保排空之後不會再有人送件
	gate     sync.RWMutex
	closed   bool
	stopping chan struct{}
	done     chan struct{}
	start    sync.Once
}

// NewSequencedStore 建立一個新的 SequencedStore 實例，並先從 WAL 恢復資料
//
// 參數:
//
//	accounts: 初始帳戶資料
//	w: Write-Ahead Log 實例，可為 nil
//	queueSize: 輸送帶容量，<= 0 使用 DefaultQueueSize
//	logger: 日誌，可為 nil
//
// 回傳:
//
//	*SequencedStore: 尚未啟動的實例，需呼叫 Start
//	error: 初始化錯誤
func NewSequencedStore(accounts []domain.Account, w *wal.WAL, queueSize int, logger *zap.Logger) (*SequencedStore, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SequencedStore{
		accounts: make(map[int64]*domain.Account, len(accounts)),
		owners:   make(map[ownerKey]int64, len(accounts)),
		nextID:   1,
		wal:      w,
		logger:   logger.Named("sequenced_store"),
		commands: make(chan *commandRequest, queueSize),
		requestPool: sync.Pool{
			New: func() any {
				return &commandRequest{result: make(chan commandResult, 1)}
			},
		},
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, account := range accounts {
		if err := s.insert(account); err != nil {
			return nil, err
		}
	}

	// 在啟動前先恢復資料
	lastSeq, count, err := recoverFromWAL(w, s)
	if err != nil {
		s.logger.Error("wal recovery failed", zap.Error(err))
		return nil, err
	}
	s.seq = lastSeq
	if w != nil {
		s.logger.Info("wal recovered",
			zap.String("path", w.Path()),
			zap.Int("records", count),
			zap.Int("accounts", len(s.accounts)),
		)
	}
	return s, nil
}

func (s *SequencedStore) get(accountID int64) (*domain.Account, bool) {
	account, ok := s.accounts[accountID]
	return account, ok
}

func (s *SequencedStore) insert(account domain.Account) error {
	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("duplicate account id %d", account.ID)
	}
	s.accounts[account.ID] = &account
	key := ownerKey{userID: account.UserID, currency: account.Currency}
	if _, ok := s.owners[key]; !ok {
		s.owners[key] = account.ID
	}
	if account.ID >= s.nextID {
		s.nextID = account.ID + 1
	}
	return nil
}

// Start 啟動核心引擎 (非同步)，重複呼叫只有第一次有效
func (s *SequencedStore) Start(ctx context.Context) {
	s.start.Do(func() {
		go s.run(ctx)
	})
}

// Done 在引擎停止且輸送帶排空後關閉
func (s *SequencedStore) Done() <-chan struct{} {
	return s.done
}

func (s *SequencedStore) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，先擋住新的送件，再把剩下的指令處理完
			close(s.stopping)
			s.gate.Lock()
			s.closed = true
			s.gate.Unlock()
			s.drain()
			s.logger.Info("sequenced store stopped", zap.Uint64("last_seq", s.seq))
			return
		case req := <-s.commands:
			s.process(req)
		}
	}
}

func (s *SequencedStore) drain() {
	for {
		select {
		case req := <-s.commands:
			s.process(req)
		default:
			return
		}
	}
}

// process 執行單筆指令並回傳結果
func (s *SequencedStore) process(req *commandRequest) {
	account, err := req.exec()
	req.result <- commandResult{account: account, err: err}
}

// submit 放入輸送帶並等待結果 (使用 sync.Pool 減少 GC)
// submit(等待) -> Channel -> Run Loop -> 檢查 -> WAL -> Map Update -> Result Channel -> submit(收到結果)
func (s *SequencedStore) submit(ctx context.Context, exec func() (domain.Account, error)) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}
	req := s.requestPool.Get().(*commandRequest)
	req.exec = exec

	s.gate.RLock()
	if s.closed {
		s.gate.RUnlock()
		s.release(req)
		return domain.Account{}, domain.ErrLedgerStopped
	}
	select {
	case s.commands <- req:
		s.gate.RUnlock()
	case <-s.stopping:
		s.gate.RUnlock()
		s.release(req)
		return domain.Account{}, domain.ErrLedgerStopped
	case <-ctx.Done():
		s.gate.RUnlock()
		s.release(req)
		return domain.Account{}, ctx.Err()
	}

	// 已進入輸送帶的指令一定會被執行 (包含排空階段)，必須等到結果
	res := <-req.result
	s.release(req)
	return res.account, res.err
}

func (s *SequencedStore) release(req *commandRequest) {
	req.exec = nil
	s.requestPool.Put(req)
}

// FindByID 以帳戶 ID 查詢
func (s *SequencedStore) FindByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := s.submit(ctx, func() (domain.Account, error) {
		account, ok := s.accounts[accountID]
		if !ok {
			return domain.Account{}, domain.NewAccountNotFoundError(0, accountID)
		}
		return *account, nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByUserAndID 以 (使用者, 帳戶) 查詢
func (s *SequencedStore) FindByUserAndID(ctx context.Context, userID, accountID int64) (*domain.Account, error) {
	account, err := s.submit(ctx, func() (domain.Account, error) {
		account, ok := s.accounts[accountID]
		if !ok || !account.OwnedBy(userID) {
			return domain.Account{}, domain.NewAccountNotFoundError(userID, accountID)
		}
		return *account, nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// AdjustBalance 依序執行 檢查 -> WAL -> 套用
func (s *SequencedStore) AdjustBalance(ctx context.Context, userID, accountID, delta int64) (*domain.Account, error) {
	account, err := s.submit(ctx, func() (domain.Account, error) {
		account, ok := s.accounts[accountID]
		if !ok || !account.OwnedBy(userID) {
			return domain.Account{}, domain.NewAccountNotFoundError(userID, accountID)
		}
		if err := account.CanApply(delta); err != nil {
			return domain.Account{}, err
		}
		if err := s.commit(adjustmentTransaction(accountID, delta)); err != nil {
			return domain.Account{}, err
		}
		if err := account.Apply(delta); err != nil {
			return domain.Account{}, err
		}
		return *account, nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Move 在 run loop 中一次完成轉帳兩端
func (s *SequencedStore) Move(ctx context.Context, req usecase.MoveRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	_, err := s.submit(ctx, func() (domain.Account, error) {
		from, ok := s.accounts[req.FromAccountID]
		if !ok || !from.OwnedBy(req.FromUserID) {
			return domain.Account{}, domain.NewAccountNotFoundError(req.FromUserID, req.FromAccountID)
		}
		if err := from.CanApply(-req.Amount); err != nil {
			return domain.Account{}, err
		}
		to, ok := s.accounts[req.ToAccountID]
		if !ok || !to.OwnedBy(req.ToUserID) {
			return domain.Account{}, domain.NewAccountNotFoundError(req.ToUserID, req.ToAccountID)
		}
		if from != to {
			if err := to.CanApply(req.Amount); err != nil {
				return domain.Account{}, err
			}
		}

		tran := domain.NewTransaction(domain.TransactionTypeTransfer, req.FromAccountID, req.ToAccountID, req.Amount)
		if err := s.commit(tran); err != nil {
			return domain.Account{}, err
		}
		if err := from.Withdraw(req.Amount); err != nil {
			return domain.Account{}, err
		}
		return domain.Account{}, to.Deposit(req.Amount)
	})
	return err
}

// OpenAccount 建立餘額為 0 的帳戶
func (s *SequencedStore) OpenAccount(ctx context.Context, userID int64, currency domain.Currency) (*domain.Account, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownCurrency, uint8(currency))
	}
	account, err := s.submit(ctx, func() (domain.Account, error) {
		if _, ok := s.owners[ownerKey{userID: userID, currency: currency}]; ok {
			return domain.Account{}, domain.ErrAccountAlreadyExists
		}
		account := domain.NewAccount(s.nextID, userID, currency, 0)
		if err := s.commit(domain.NewOpenTransaction(account)); err != nil {
			return domain.Account{}, err
		}
		if err := s.insert(*account); err != nil {
			return domain.Account{}, err
		}
		return *account, nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Accounts 回傳所有帳戶的時間點快照 (依 ID 排序)
func (s *SequencedStore) Accounts(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	_, err := s.submit(ctx, func() (domain.Account, error) {
		out = make([]domain.Account, 0, len(s.accounts))
		for _, account := range s.accounts {
			out = append(out, *account)
		}
		return domain.Account{}, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// commit 分配序號並寫入 WAL，只在 run loop 中呼叫
func (s *SequencedStore) commit(tran *domain.Transaction) error {
	tran.Sequence = s.seq + 1
	if err := journal(s.wal, tran); err != nil {
		s.logger.Error("wal write failed", zap.Uint64("seq", tran.Sequence), zap.Error(err))
		return err
	}
	s.seq = tran.Sequence
	return nil
}

var (
	_ usecase.AccountStore  = (*SequencedStore)(nil)
	_ usecase.FundsMover    = (*SequencedStore)(nil)
	_ usecase.AccountOpener = (*SequencedStore)(nil)
)
