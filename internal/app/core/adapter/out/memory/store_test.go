package memory_test

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

// store 兩種記憶體帳本共同的能力
type store interface {
	usecase.AccountStore
	usecase.FundsMover
	usecase.AccountOpener
	Accounts(ctx context.Context) ([]domain.Account, error)
}

type storeFactory func(t *testing.T, accounts []domain.Account, w *wal.WAL) store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"mutex": func(t *testing.T, accounts []domain.Account, w *wal.WAL) store {
			s, err := memory.NewMutexStore(accounts, w, nil)
			require.NoError(t, err)
			return s
		},
		"sequenced": func(t *testing.T, accounts []domain.Account, w *wal.WAL) store {
			s, err := memory.NewSequencedStore(accounts, w, 0, nil)
			require.NoError(t, err)
			ctx, cancel := context.WithCancel(context.Background())
			s.Start(ctx)
			t.Cleanup(func() {
				cancel()
				<-s.Done()
			})
			return s
		},
	}
}

// seedAccounts 兩位使用者，各有 RUB/USD 帳戶
//
//	1: user 1 RUB 500
//	2: user 1 USD 100
//	3: user 2 RUB 300
//	4: user 2 USD 0
func seedAccounts() []domain.Account {
	return []domain.Account{
		{ID: 1, UserID: 1, Currency: domain.CurrencyRUB, Balance: 500},
		{ID: 2, UserID: 1, Currency: domain.CurrencyUSD, Balance: 100},
		{ID: 3, UserID: 2, Currency: domain.CurrencyRUB, Balance: 300},
		{ID: 4, UserID: 2, Currency: domain.CurrencyUSD, Balance: 0},
	}
}

func balanceOf(t *testing.T, s store, accountID int64) int64 {
	t.Helper()
	account, err := s.FindByID(context.Background(), accountID)
	require.NoError(t, err)
	return account.Balance
}

func totalBalance(t *testing.T, s store) int64 {
	t.Helper()
	accounts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	var total int64
	for _, account := range accounts {
		require.GreaterOrEqual(t, account.Balance, int64(0), "account %d", account.ID)
		total += account.Balance
	}
	return total
}

func TestStore_FindAccounts(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)
			ctx := context.Background()

			account, err := s.FindByUserAndID(ctx, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, domain.Account{ID: 2, UserID: 1, Currency: domain.CurrencyUSD, Balance: 100}, *account)

			_, err = s.FindByUserAndID(ctx, 2, 1)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound, "account owned by another user")

			_, err = s.FindByID(ctx, 99)
			var notFound *domain.AccountNotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, int64(99), notFound.AccountID)

			// 回傳的是副本
			account.Balance = 1_000_000
			assert.Equal(t, int64(100), balanceOf(t, s, 2))
		})
	}
}

func TestStore_AdjustBalance(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)
			ctx := context.Background()

			account, err := s.AdjustBalance(ctx, 1, 1, 250)
			require.NoError(t, err)
			assert.Equal(t, int64(750), account.Balance)

			account, err = s.AdjustBalance(ctx, 1, 1, -750)
			require.NoError(t, err)
			assert.Zero(t, account.Balance)

			_, err = s.AdjustBalance(ctx, 1, 1, -1)
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			assert.Equal(t, "Cannot withdraw 1 RUB", err.Error())
			assert.Zero(t, balanceOf(t, s, 1))

			_, err = s.AdjustBalance(ctx, 2, 1, 10)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = s.AdjustBalance(ctx, 1, 42, 10)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = s.AdjustBalance(ctx, 1, 1, 0)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestStore_Move(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)
			ctx := context.Background()

			err := s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 2, ToAccountID: 3, Amount: 500})
			require.NoError(t, err)
			assert.Zero(t, balanceOf(t, s, 1))
			assert.Equal(t, int64(800), balanceOf(t, s, 3))

			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 2, FromAccountID: 3, ToUserID: 1, ToAccountID: 1, Amount: 801})
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			assert.Equal(t, "Cannot withdraw 801 RUB", err.Error())
			assert.Equal(t, int64(800), balanceOf(t, s, 3))
			assert.Zero(t, balanceOf(t, s, 1))

			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 2, FromAccountID: 3, ToUserID: 2, ToAccountID: 3, Amount: 800})
			require.NoError(t, err, "transfer to self")
			assert.Equal(t, int64(800), balanceOf(t, s, 3))

			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 2, FromAccountID: 3, ToUserID: 1, ToAccountID: 1, Amount: 0})
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestStore_Move_ErrorPrecedence(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)
			ctx := context.Background()

			// 來源不存在優先於其他錯誤
			err := s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 77, ToUserID: 2, ToAccountID: 88, Amount: 1_000})
			var notFound *domain.AccountNotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, int64(77), notFound.AccountID)

			// 餘額不足優先於目的不存在
			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 2, ToAccountID: 88, Amount: 1_000})
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 2, ToAccountID: 88, Amount: 10})
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, int64(88), notFound.AccountID)

			// 目的帳戶存在但不屬於 ToUserID
			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 1, ToAccountID: 3, Amount: 10})
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)

			assert.Equal(t, int64(500), balanceOf(t, s, 1))
			assert.Equal(t, int64(300), balanceOf(t, s, 3))
		})
	}
}

func TestStore_BalanceOverflowRejected(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			w, err := wal.NewWAL(filepath.Join(t.TempDir(), "wal.log"))
			require.NoError(t, err)
			t.Cleanup(func() { w.Close() })

			accounts := seedAccounts()
			accounts[3].Balance = math.MaxInt64 - 10 // 4: user 2 USD
			s := newStore(t, accounts, w)
			ctx := context.Background()

			core := usecase.NewCoreUseCase(s, nil)
			_, err = core.Deposit(ctx, 1, 1, math.MaxInt64)
			require.ErrorIs(t, err, domain.ErrBalanceOverflow)
			assert.Equal(t, int64(500), balanceOf(t, s, 1))

			_, err = s.AdjustBalance(ctx, 2, 4, 11)
			require.ErrorIs(t, err, domain.ErrBalanceOverflow)

			// 轉入後會溢位的目的帳戶，兩端都不變
			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 2, ToUserID: 2, ToAccountID: 4, Amount: 11})
			require.ErrorIs(t, err, domain.ErrBalanceOverflow)
			assert.Equal(t, int64(100), balanceOf(t, s, 2))
			assert.Equal(t, int64(math.MaxInt64-10), balanceOf(t, s, 4))

			// 剛好到上限仍然允許
			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 2, ToUserID: 2, ToAccountID: 4, Amount: 10})
			require.NoError(t, err)
			assert.Equal(t, int64(math.MaxInt64), balanceOf(t, s, 4))

			// 轉給自己不會因為中間值溢位而失敗
			err = s.Move(ctx, usecase.MoveRequest{FromUserID: 2, FromAccountID: 4, ToUserID: 2, ToAccountID: 4, Amount: 5})
			require.NoError(t, err)

			// 被拒絕的異動不會進 WAL
			var records int
			require.NoError(t, w.ReadAll(func([]byte) error {
				records++
				return nil
			}))
			assert.Equal(t, 2, records)

			for _, account := range mustAccounts(t, s) {
				assert.GreaterOrEqual(t, account.Balance, int64(0), "account %d", account.ID)
			}
		})
	}
}

func mustAccounts(t *testing.T, s store) []domain.Account {
	t.Helper()
	accounts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	return accounts
}

func TestStore_OpenAccount(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)
			ctx := context.Background()

			account, err := s.OpenAccount(ctx, 3, domain.CurrencyEUR)
			require.NoError(t, err)
			assert.Equal(t, int64(5), account.ID)
			assert.Zero(t, account.Balance)

			_, err = s.OpenAccount(ctx, 3, domain.CurrencyEUR)
			assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
			_, err = s.OpenAccount(ctx, 1, domain.CurrencyRUB)
			assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
			_, err = s.OpenAccount(ctx, 3, domain.Currency(0))
			assert.ErrorIs(t, err, domain.ErrUnknownCurrency)

			found, err := s.FindByUserAndID(ctx, 3, 5)
			require.NoError(t, err)
			assert.Equal(t, domain.CurrencyEUR, found.Currency)
		})
	}
}

func TestStore_ConcurrentDeposits(t *testing.T) {
	const workers = 100
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)

			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.AdjustBalance(context.Background(), 2, 4, 10)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(workers*10), balanceOf(t, s, 4))
		})
	}
}

func TestStore_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	const workers = 50
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.AdjustBalance(context.Background(), 1, 1, -20)
					if err != nil {
						assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
						return
					}
					mu.Lock()
					succeeded++
					mu.Unlock()
				}()
			}
			wg.Wait()

			assert.Equal(t, 25, succeeded)
			assert.Zero(t, balanceOf(t, s, 1))
		})
	}
}

func TestStore_OppositeTransfersConserveMoney(t *testing.T) {
	const rounds = 200
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, seedAccounts(), nil)
			before := totalBalance(t, s)

			var wg sync.WaitGroup
			for i := range rounds {
				wg.Add(2)
				go func() {
					defer wg.Done()
					err := s.Move(context.Background(), usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 2, ToAccountID: 3, Amount: int64(i%7 + 1)})
					if err != nil {
						assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
					}
				}()
				go func() {
					defer wg.Done()
					err := s.Move(context.Background(), usecase.MoveRequest{FromUserID: 2, FromAccountID: 3, ToUserID: 1, ToAccountID: 1, Amount: int64(i%5 + 1)})
					if err != nil {
						assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, before, totalBalance(t, s))
		})
	}
}

func TestStore_RecoversFromWAL(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ledger.wal")
			ctx := context.Background()

			w, err := wal.NewWAL(path)
			require.NoError(t, err)
			s := newStore(t, seedAccounts(), w)

			_, err = s.AdjustBalance(ctx, 1, 1, 100)
			require.NoError(t, err)
			_, err = s.AdjustBalance(ctx, 1, 1, -1_000)
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			require.NoError(t, s.Move(ctx, usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 2, ToAccountID: 3, Amount: 600}))
			opened, err := s.OpenAccount(ctx, 9, domain.CurrencyEUR)
			require.NoError(t, err)
			_, err = s.AdjustBalance(ctx, 9, opened.ID, 42)
			require.NoError(t, err)

			want, err := s.Accounts(ctx)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			w, err = wal.NewWAL(path)
			require.NoError(t, err)
			defer w.Close()
			recovered := newStore(t, seedAccounts(), w)

			got, err := recovered.Accounts(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			// 開戶序號接續，不會與重放的帳戶衝突
			next, err := recovered.OpenAccount(ctx, 9, domain.CurrencyUSD)
			require.NoError(t, err)
			assert.Equal(t, opened.ID+1, next.ID)
		})
	}
}

func TestStore_WALWriteFailureLeavesBalance(t *testing.T) {
	for name, newStore := range factories() {
		t.Run(name, func(t *testing.T) {
			w, err := wal.NewWAL(filepath.Join(t.TempDir(), "ledger.wal"))
			require.NoError(t, err)
			s := newStore(t, seedAccounts(), w)
			require.NoError(t, w.Close())

			_, err = s.AdjustBalance(context.Background(), 1, 1, 10)
			require.ErrorIs(t, err, domain.ErrWALWriteFailed)
			assert.Equal(t, int64(500), balanceOf(t, s, 1))
		})
	}
}

func TestNewStore_DuplicateAccountID(t *testing.T) {
	accounts := append(seedAccounts(), domain.Account{ID: 1, UserID: 5, Currency: domain.CurrencyEUR})

	_, err := memory.NewMutexStore(accounts, nil, nil)
	assert.Error(t, err)
	_, err = memory.NewSequencedStore(accounts, nil, 0, nil)
	assert.Error(t, err)
}

func TestSequencedStore_StoppedAfterCancel(t *testing.T) {
	s, err := memory.NewSequencedStore(seedAccounts(), nil, 4, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	_, err = s.AdjustBalance(context.Background(), 1, 1, 1)
	require.NoError(t, err)

	cancel()
	<-s.Done()

	_, err = s.FindByID(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrLedgerStopped)
	assert.ErrorIs(t, s.Move(context.Background(), usecase.MoveRequest{FromUserID: 1, FromAccountID: 1, ToUserID: 2, ToAccountID: 3, Amount: 1}), domain.ErrLedgerStopped)
}

func TestSequencedStore_CallerContextCancelledWhileQueued(t *testing.T) {
	// 未啟動的引擎不會消化輸送帶
	s, err := memory.NewSequencedStore(seedAccounts(), nil, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.AdjustBalance(context.Background(), 1, 1, 1)
		done <- err
	}()
	cancel()
	_, err = s.FindByID(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)

	runCtx, stop := context.WithCancel(context.Background())
	s.Start(runCtx)
	assert.NoError(t, <-done)
	stop()
	<-s.Done()
}
