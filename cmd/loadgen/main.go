package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/pkg/grpc"
	"github.com/JoeShih716/go-account-ledger/pkg/logger"
)

type options struct {
	target      string
	pairs       int
	transfers   int
	concurrency int
	initial     int64
	maxAmount   int64
	timeout     time.Duration
}

// stats 壓測結果
type stats struct {
	ok       atomic.Int64
	rejected atomic.Int64 // 餘額不足
	failed   atomic.Int64
}

func main() {
	var opts options
	flag.StringVar(&opts.target, "target", "localhost:50051", "ledger gRPC address")
	flag.IntVar(&opts.pairs, "pairs", 50, "number of user pairs transferring to each other")
	flag.IntVar(&opts.transfers, "transfers", 100000, "total transfers to send")
	flag.IntVar(&opts.concurrency, "concurrency", 200, "in-flight requests")
	flag.Int64Var(&opts.initial, "initial", 1000, "initial RUB balance per user")
	flag.Int64Var(&opts.maxAmount, "max-amount", 100, "max amount of a single transfer")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	log, _, err := logger.New(logger.Config{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(opts, log); err != nil {
		log.Error("loadgen failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts options, log *zap.Logger) error {
	pool := grpc.NewPool(grpc.WithJSONCodec())
	defer pool.Close()
	conn, err := pool.GetConnection(opts.target)
	if err != nil {
		return err
	}
	client := grpc_adapter.NewLedgerServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	// 每次執行使用新的 user id 區段，避免與既有帳戶衝突
	runID := uuid.New()
	baseUser := int64(runID.ID()) * 1000
	log = log.With(zap.String("run_id", runID.String()))

	// 1. 開戶並入金
	users := opts.pairs * 2
	accounts := make([]int64, users)
	for i := range users {
		userID := baseUser + int64(i)
		resp, err := client.OpenAccounts(ctx, &grpc_adapter.OpenAccountsRequest{UserID: userID})
		if err != nil {
			return fmt.Errorf("open accounts for user %d: %w", userID, err)
		}
		accountID, err := rubAccount(resp.Accounts)
		if err != nil {
			return err
		}
		accounts[i] = accountID
		if _, err := client.Deposit(ctx, &grpc_adapter.BalanceRequest{UserID: userID, AccountID: accountID, Amount: opts.initial}); err != nil {
			return fmt.Errorf("fund user %d: %w", userID, err)
		}
	}
	log.Info("accounts funded", zap.Int("users", users), zap.Int64("initial", opts.initial))

	// 2. 同一組使用者互相轉帳
	var (
		result stats
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, opts.concurrency)
	startTime := time.Now()

	for i := range opts.transfers {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			from, to := 2*(idx%opts.pairs), 2*(idx%opts.pairs)+1
			if idx%2 == 1 {
				from, to = to, from
			}
			_, err := client.Transfer(ctx, &grpc_adapter.TransferRequest{
				UserID:        baseUser + int64(from),
				FromAccountID: accounts[from],
				ToUserID:      baseUser + int64(to),
				ToAccountID:   accounts[to],
				Amount:        1 + rand.Int64N(opts.maxAmount),
			})
			switch status.Code(err) {
			case codes.OK:
				result.ok.Add(1)
			case codes.FailedPrecondition:
				result.rejected.Add(1)
			default:
				if result.failed.Add(1) <= 10 {
					log.Warn("transfer failed", zap.Int("idx", idx), zap.Error(err))
				}
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(startTime)
	log.Info("transfers completed",
		zap.Int("total", opts.transfers),
		zap.Int64("ok", result.ok.Load()),
		zap.Int64("rejected", result.rejected.Load()),
		zap.Int64("failed", result.failed.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tps", float64(opts.transfers)/elapsed.Seconds()),
	)

	// 3. 檢查總額不變且沒有負餘額
	var total int64
	for i, accountID := range accounts {
		snap, err := client.GetAccount(ctx, &grpc_adapter.AccountRequest{UserID: baseUser + int64(i), AccountID: accountID})
		if err != nil {
			return fmt.Errorf("read account %d: %w", accountID, err)
		}
		if snap.Amount < 0 {
			return fmt.Errorf("account %d has negative balance %d", accountID, snap.Amount)
		}
		total += snap.Amount
	}
	if want := opts.initial * int64(users); total != want {
		return fmt.Errorf("balance not conserved: got %d, want %d", total, want)
	}
	log.Info("balances conserved", zap.Int64("total", total))
	return nil
}

func rubAccount(accounts []domain.AccountSnapshot) (int64, error) {
	for _, account := range accounts {
		if account.Currency == domain.CurrencyRUB {
			return account.ID, nil
		}
	}
	return 0, fmt.Errorf("no RUB account in %v", accounts)
}
