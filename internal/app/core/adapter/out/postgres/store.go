package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/postgres"
)

// Schema accounts 表定義，balance 由 CHECK 再擋一次負數
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT      NOT NULL,
	currency   SMALLINT    NOT NULL,
	balance    BIGINT      NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT accounts_user_currency_key UNIQUE (user_id, currency)
)`

// PostgreSQL unique_violation
const uniqueViolation = "23505"

const (
	selectAccount = `SELECT id, user_id, currency, balance FROM accounts WHERE id = $1`

	selectUserAccount = `SELECT id, user_id, currency, balance FROM accounts WHERE id = $1 AND user_id = $2`

	lockAccount = `SELECT id, user_id, currency, balance FROM accounts WHERE id = $1 FOR UPDATE`

	updateBalance = `UPDATE accounts SET balance = $2, updated_at = now() WHERE id = $1`

	insertAccount = `INSERT INTO accounts (user_id, currency, balance) VALUES ($1, $2, 0) RETURNING id`

	selectAllAccounts = `SELECT id, user_id, currency, balance FROM accounts ORDER BY id`
)

// Store 以 PostgreSQL 為事實來源的帳戶儲存 (pgx)
// 與 MySQL 版相同: 異動在單一交易內以 SELECT ... FOR UPDATE 依帳戶 ID 遞增順序上鎖
type Store struct {
	pool   *postgres.Pool
	logger *zap.Logger
}

func NewStore(pool *postgres.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger.Named("postgres_store")}
}

// Migrate 建立 accounts 表
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate accounts: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account  domain.Account
		currency int16
	)
	if err := row.Scan(&account.ID, &account.UserID, &currency, &account.Balance); err != nil {
		return nil, err
	}
	account.Currency = domain.Currency(currency)
	return &account, nil
}

// LoadAllAccounts 載入所有帳戶 (依 ID 排序)
func (s *Store) LoadAllAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.pool.Query(ctx, selectAllAccounts)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Account, error) {
		account, err := scanAccount(row)
		if err != nil {
			return domain.Account{}, err
		}
		return *account, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return accounts, nil
}

// FindByID 以帳戶 ID 查詢
func (s *Store) FindByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, selectAccount, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewAccountNotFoundError(0, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("find account %d: %w", accountID, err)
	}
	return account, nil
}

// FindByUserAndID 以 (使用者, 帳戶) 單次查詢
func (s *Store) FindByUserAndID(ctx context.Context, userID, accountID int64) (*domain.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, selectUserAccount, accountID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewAccountNotFoundError(userID, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("find account %d of user %d: %w", accountID, userID, err)
	}
	return account, nil
}

// AdjustBalance 鎖定帳戶列後檢查並更新餘額
func (s *Store) AdjustBalance(ctx context.Context, userID, accountID, delta int64) (*domain.Account, error) {
	var result *domain.Account
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		locked, err := lockAccounts(ctx, tx, []int64{accountID})
		if err != nil {
			return err
		}
		account, ok := locked[accountID]
		if !ok || !account.OwnedBy(userID) {
			return domain.NewAccountNotFoundError(userID, accountID)
		}
		if err := account.Apply(delta); err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, account); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Move 在同一個交易內完成轉帳兩端
func (s *Store) Move(ctx context.Context, req usecase.MoveRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	tran := domain.NewTransaction(domain.TransactionTypeTransfer, req.FromAccountID, req.ToAccountID, req.Amount)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		locked, err := lockAccounts(ctx, tx, tran.GetLockIDs())
		if err != nil {
			return err
		}

		from, ok := locked[req.FromAccountID]
		if !ok || !from.OwnedBy(req.FromUserID) {
			return domain.NewAccountNotFoundError(req.FromUserID, req.FromAccountID)
		}
		if err := from.CanApply(-req.Amount); err != nil {
			return err
		}
		to, ok := locked[req.ToAccountID]
		if !ok || !to.OwnedBy(req.ToUserID) {
			return domain.NewAccountNotFoundError(req.ToUserID, req.ToAccountID)
		}
		if req.FromAccountID == req.ToAccountID {
			return nil
		}
		if err := to.CanApply(req.Amount); err != nil {
			return err
		}

		if err := from.Withdraw(req.Amount); err != nil {
			return err
		}
		if err := to.Deposit(req.Amount); err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, from); err != nil {
			return err
		}
		return writeBalance(ctx, tx, to)
	})
}

// OpenAccount 建立餘額為 0 的帳戶，由唯一限制擋下重複開戶
func (s *Store) OpenAccount(ctx context.Context, userID int64, currency domain.Currency) (*domain.Account, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownCurrency, uint8(currency))
	}
	var id int64
	err := s.pool.QueryRow(ctx, insertAccount, userID, int16(currency)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Debug("account opened",
		zap.Int64("account_id", id),
		zap.Int64("user_id", userID),
		zap.Stringer("currency", currency),
	)
	return domain.NewAccount(id, userID, currency, 0), nil
}

// lockAccounts 依傳入順序逐一上鎖，不存在的帳戶不會出現在結果中
func lockAccounts(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]*domain.Account, error) {
	locked := make(map[int64]*domain.Account, len(ids))
	for _, id := range ids {
		account, err := scanAccount(tx.QueryRow(ctx, lockAccount, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock account %d: %w", id, err)
		}
		locked[id] = account
	}
	return locked, nil
}

func writeBalance(ctx context.Context, tx pgx.Tx, account *domain.Account) error {
	if _, err := tx.Exec(ctx, updateBalance, account.ID, account.Balance); err != nil {
		return fmt.Errorf("update balance of account %d: %w", account.ID, err)
	}
	return nil
}

var (
	_ usecase.AccountStore  = (*Store)(nil)
	_ usecase.FundsMover    = (*Store)(nil)
	_ usecase.AccountOpener = (*Store)(nil)
)
