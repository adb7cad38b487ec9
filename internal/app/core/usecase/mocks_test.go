package usecase_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
)

// mockStore 只實作 AccountStore，轉帳走補償流程
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	account, _ := args.Get(0).(*domain.Account)
	return account, args.Error(1)
}

func (m *mockStore) FindByUserAndID(ctx context.Context, userID, accountID int64) (*domain.Account, error) {
	args := m.Called(ctx, userID, accountID)
	account, _ := args.Get(0).(*domain.Account)
	return account, args.Error(1)
}

func (m *mockStore) AdjustBalance(ctx context.Context, userID, accountID, delta int64) (*domain.Account, error) {
	args := m.Called(ctx, userID, accountID, delta)
	account, _ := args.Get(0).(*domain.Account)
	return account, args.Error(1)
}

// mockMoverStore 額外實作 FundsMover
type mockMoverStore struct {
	mockStore
}

func (m *mockMoverStore) Move(ctx context.Context, req usecase.MoveRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// mockOpenerStore 額外實作 AccountOpener
type mockOpenerStore struct {
	mockStore
}

func (m *mockOpenerStore) OpenAccount(ctx context.Context, userID int64, currency domain.Currency) (*domain.Account, error) {
	args := m.Called(ctx, userID, currency)
	account, _ := args.Get(0).(*domain.Account)
	return account, args.Error(1)
}

var (
	_ usecase.AccountStore  = (*mockStore)(nil)
	_ usecase.FundsMover    = (*mockMoverStore)(nil)
	_ usecase.AccountOpener = (*mockOpenerStore)(nil)
)
