package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/in/grpc"
	memory_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-account-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/internal/config"
	"github.com/JoeShih716/go-account-ledger/pkg/logger"
	"github.com/JoeShih716/go-account-ledger/pkg/mysql"
	"github.com/JoeShih716/go-account-ledger/pkg/postgres"
	"github.com/JoeShih716/go-account-ledger/pkg/wal"
)

func main() {
	// 1. 載入設定
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, level, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reloadLogLevelOnHangup(ctx, level, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("ledger exited", zap.Error(err))
		os.Exit(1)
	}
}

// reloadLogLevelOnHangup 收到 SIGHUP 時重新讀取設定檔，只套用 log.level
func reloadLogLevelOnHangup(ctx context.Context, level zap.AtomicLevel, log *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load()
			if err == nil {
				err = logger.SetLevel(level, cfg.Log)
			}
			if err != nil {
				log.Warn("reload log level failed", zap.Error(err))
				continue
			}
			log.Info("log level reloaded", zap.Stringer("level", level.Level()))
		}
	}
}

// closers 依相反順序釋放資源
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var cleanup closers
	defer cleanup.closeAll()

	// 2. 初始化帳戶儲存
	store, err := buildStore(ctx, cfg, log, &cleanup)
	if err != nil {
		return err
	}

	// 3. 初始化 UseCase
	coreUseCase := usecase.NewCoreUseCase(store, log)

	// 4. 啟動 gRPC Server
	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(grpc_adapter.LoggingInterceptor(log)))
	grpc_adapter.RegisterLedgerServiceServer(s, grpc_adapter.NewGrpcServer(coreUseCase))

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting gRPC server",
			zap.String("listen", cfg.Server.Listen),
			zap.String("store", string(cfg.Ledger.Store)),
		)
		serveErr <- s.Serve(lis)
	}()

	// Graceful Shutdown
	select {
	case <-ctx.Done():
		log.Info("shutting down server")
		s.GracefulStop()
		log.Info("server exited")
		return nil
	case err := <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	}
}

// buildStore 依 ledger.store 建立對應的 AccountStore
// 記憶體 store 可先從 MySQL 載入帳戶，並以 WAL 重建上次的狀態
func buildStore(ctx context.Context, cfg *config.Config, log *zap.Logger, cleanup *closers) (usecase.AccountStore, error) {
	var mysqlStore *mysql_adapter.Store
	if cfg.NeedsMySQL() {
		dbClient, err := mysql.NewClient(cfg.MySQL, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		cleanup.add(func() { _ = dbClient.Close() })
		log.Info("connected to MySQL", zap.String("host", cfg.MySQL.Host))

		mysqlStore = mysql_adapter.NewStore(dbClient, log)
		if err := mysqlStore.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	switch cfg.Ledger.Store {
	case config.StoreMySQL:
		return mysqlStore, nil

	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		cleanup.add(pool.Close)
		pgStore := postgres_adapter.NewStore(pool, log)
		if err := pgStore.Migrate(ctx); err != nil {
			return nil, err
		}
		return pgStore, nil

	case config.StoreMemory, config.StoreSequenced:
		var accounts []domain.Account
		if mysqlStore != nil {
			loaded, err := mysqlStore.LoadAllAccounts(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load all accounts: %w", err)
			}
			accounts = loaded
			log.Info("loaded accounts from MySQL", zap.Int("count", len(accounts)))
		}

		var walFile *wal.WAL
		if cfg.Ledger.WALPath != "" {
			w, err := wal.NewWAL(cfg.Ledger.WALPath)
			if err != nil {
				return nil, fmt.Errorf("failed to init WAL: %w", err)
			}
			// 後加入的先關閉，WAL 會在 SequencedStore 停止之後才關閉
			cleanup.add(func() { _ = w.Close() })
			walFile = w
		}

		if cfg.Ledger.Store == config.StoreMemory {
			return memory_adapter.NewMutexStore(accounts, walFile, log)
		}

		seqStore, err := memory_adapter.NewSequencedStore(accounts, walFile, cfg.Ledger.QueueSize, log)
		if err != nil {
			return nil, err
		}
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		seqStore.Start(loopCtx)
		cleanup.add(func() {
			cancel()
			<-seqStore.Done()
		})
		return seqStore, nil
	}
	return nil, fmt.Errorf("unsupported store %q", cfg.Ledger.Store)
}
