package mysql

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-account-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
// 同一使用者同一幣別只能有一個帳戶 (idx_accounts_user_currency)
type sqlAccount struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_accounts_user_currency,priority:1"`
	Currency  uint8 `gorm:"not null;uniqueIndex:idx_accounts_user_currency,priority:2"`
	Balance   int64 `gorm:"not null"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() *domain.Account {
	return domain.NewAccount(a.ID, a.UserID, domain.Currency(a.Currency), a.Balance)
}

// Store 以 MySQL 為事實來源的帳戶儲存
// 每個異動都在一個 DB Transaction 內以 SELECT ... FOR UPDATE (悲觀鎖) 完成
type Store struct {
	client *mysql.Client
	logger *zap.Logger
}

func NewStore(client *mysql.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		logger: logger.Named("mysql_store"),
	}
}

// Migrate 建立或更新 accounts 表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}); err != nil {
		return fmt.Errorf("migrate accounts: %w", err)
	}
	return nil
}

// LoadAllAccounts 載入系統所有帳戶資料 (依 ID 排序)，供記憶體帳本預載
func (s *Store) LoadAllAccounts(ctx context.Context) ([]domain.Account, error) {
	var rows []sqlAccount
	if err := s.client.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	accounts := make([]domain.Account, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, *rows[i].toDomain())
	}
	return accounts, nil
}

// FindByID 以帳戶 ID 查詢
func (s *Store) FindByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	var row sqlAccount
	err := s.client.DB().WithContext(ctx).Where("id = ?", accountID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewAccountNotFoundError(0, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("find account %d: %w", accountID, err)
	}
	return row.toDomain(), nil
}

// FindByUserAndID 以 (使用者, 帳戶) 單次查詢
func (s *Store) FindByUserAndID(ctx context.Context, userID, accountID int64) (*domain.Account, error) {
	var row sqlAccount
	err := s.client.DB().WithContext(ctx).
		Where("id = ? AND user_id = ?", accountID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NewAccountNotFoundError(userID, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("find account %d of user %d: %w", accountID, userID, err)
	}
	return row.toDomain(), nil
}

// AdjustBalance 鎖定帳戶列後檢查並更新餘額
func (s *Store) AdjustBalance(ctx context.Context, userID, accountID, delta int64) (*domain.Account, error) {
	var result *domain.Account
	err := s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAccounts(tx, []int64{accountID})
		if err != nil {
			return err
		}
		row, ok := locked[accountID]
		if !ok || row.UserID != userID {
			return domain.NewAccountNotFoundError(userID, accountID)
		}

		account := row.toDomain()
		if err := account.Apply(delta); err != nil {
			return err
		}
		if err := updateBalance(tx, account); err != nil {
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

// Move 在同一個 DB Transaction 內完成轉帳兩端
// 依帳戶 ID 遞增順序逐一上鎖，避免兩筆反向轉帳互相等待
func (s *Store) Move(ctx context.Context, req usecase.MoveRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	tran := domain.NewTransaction(domain.TransactionTypeTransfer, req.FromAccountID, req.ToAccountID, req.Amount)

	return s.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAccounts(tx, tran.GetLockIDs())
		if err != nil {
			return err
		}

		// 錯誤優先順序與先提款再存款相同
		fromRow, ok := locked[req.FromAccountID]
		if !ok || fromRow.UserID != req.FromUserID {
			return domain.NewAccountNotFoundError(req.FromUserID, req.FromAccountID)
		}
		from := fromRow.toDomain()
		if err := from.CanApply(-req.Amount); err != nil {
			return err
		}
		toRow, ok := locked[req.ToAccountID]
		if !ok || toRow.UserID != req.ToUserID {
			return domain.NewAccountNotFoundError(req.ToUserID, req.ToAccountID)
		}
		if req.FromAccountID == req.ToAccountID {
			return nil
		}

		to := toRow.toDomain()
		if err := to.CanApply(req.Amount); err != nil {
			return err
		}
		if err := from.Withdraw(req.Amount); err != nil {
			return err
		}
		if err := to.Deposit(req.Amount); err != nil {
			return err
		}
		if err := updateBalance(tx, from); err != nil {
			return err
		}
		return updateBalance(tx, to)
	})
}

// OpenAccount 建立餘額為 0 的帳戶，由唯一索引擋下重複開戶
func (s *Store) OpenAccount(ctx context.Context, userID int64, currency domain.Currency) (*domain.Account, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownCurrency, uint8(currency))
	}
	row := sqlAccount{
		UserID:   userID,
		Currency: uint8(currency),
	}
	err := s.client.DB().WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, domain.ErrAccountAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.logger.Debug("account opened",
		zap.Int64("account_id", row.ID),
		zap.Int64("user_id", userID),
		zap.Stringer("currency", currency),
	)
	return row.toDomain(), nil
}

// lockAccounts 依傳入順序逐一 SELECT ... FOR UPDATE，不存在的帳戶不會出現在結果中
func lockAccounts(tx *gorm.DB, ids []int64) (map[int64]*sqlAccount, error) {
	locked := make(map[int64]*sqlAccount, len(ids))
	for _, id := range ids {
		var rows []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("lock account %d: %w", id, err)
		}
		if len(rows) > 0 {
			locked[id] = &rows[0]
		}
	}
	return locked, nil
}

func updateBalance(tx *gorm.DB, account *domain.Account) error {
	err := tx.Model(&sqlAccount{}).
		Where("id = ?", account.ID).
		Update("balance", account.Balance).Error
	if err != nil {
		return fmt.Errorf("update balance of account %d: %w", account.ID, err)
	}
	return nil
}

var (
	_ usecase.AccountStore  = (*Store)(nil)
	_ usecase.FundsMover    = (*Store)(nil)
	_ usecase.AccountOpener = (*Store)(nil)
)
