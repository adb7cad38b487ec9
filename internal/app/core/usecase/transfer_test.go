package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
)

const (
	fromUser    int64 = 1
	fromAccount int64 = 10
	toUser      int64 = 2
	toAccount   int64 = 20
)

func transferRequest(amount int64) domain.TransferRequest {
	return domain.TransferRequest{
		FromAccountID: fromAccount,
		ToUserID:      toUser,
		ToAccountID:   toAccount,
		Amount:        amount,
	}
}

func expectAccounts(store *mockStore, fromCurrency, toCurrency domain.Currency) {
	store.On("FindByID", mock.Anything, fromAccount).
		Return(domain.NewAccount(fromAccount, fromUser, fromCurrency, 500), nil)
	store.On("FindByID", mock.Anything, toAccount).
		Return(domain.NewAccount(toAccount, toUser, toCurrency, 300), nil)
}

func TestValidateCurrency_SameCurrency_FindsBothAccounts(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	core := usecase.NewCoreUseCase(store, nil)

	require.NoError(t, core.ValidateCurrency(context.Background(), fromAccount, toAccount))
	store.AssertNumberOfCalls(t, "FindByID", 2)
}

func TestValidateCurrency_DifferentCurrency(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyEUR)
	core := usecase.NewCoreUseCase(store, nil)

	err := core.ValidateCurrency(context.Background(), fromAccount, toAccount)

	require.ErrorIs(t, err, domain.ErrWrongCurrency)
	assert.Equal(t, "Account currencies should be same", err.Error())
	store.AssertNumberOfCalls(t, "FindByID", 2)
}

func TestValidateCurrency_FirstAccountMissing_FailsFast(t *testing.T) {
	store := &mockStore{}
	store.On("FindByID", mock.Anything, mock.Anything).
		Return(nil, domain.NewAccountNotFoundError(0, fromAccount))
	core := usecase.NewCoreUseCase(store, nil)

	err := core.ValidateCurrency(context.Background(), fromAccount, toAccount)

	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Contains(t, err.Error(), "10")
	store.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestValidateCurrency_SecondAccountMissing(t *testing.T) {
	store := &mockStore{}
	store.On("FindByID", mock.Anything, fromAccount).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 500), nil)
	store.On("FindByID", mock.Anything, toAccount).
		Return(nil, domain.NewAccountNotFoundError(0, toAccount))
	core := usecase.NewCoreUseCase(store, nil)

	err := core.ValidateCurrency(context.Background(), fromAccount, toAccount)

	var notFound *domain.AccountNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, toAccount, notFound.AccountID)
}

func TestTransfer_Compensating_Success(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(-500)).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 0), nil).Once()
	store.On("AdjustBalance", mock.Anything, toUser, toAccount, int64(500)).
		Return(domain.NewAccount(toAccount, toUser, domain.CurrencyRUB, 800), nil).Once()
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(500))

	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "FindByID", 2)
	store.AssertNumberOfCalls(t, "AdjustBalance", 2)
	store.AssertExpectations(t)
}

func TestTransfer_WrongCurrency_NoBalanceChange(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyUSD)
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(100))

	require.ErrorIs(t, err, domain.ErrWrongCurrency)
	store.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransfer_InvalidAmount_NoDeposit(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(0))

	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	store.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransfer_InsufficientFunds_NoDeposit(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(-501)).
		Return(nil, domain.NewInsufficientFundsError(501, domain.CurrencyRUB)).Once()
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(501))

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "Cannot withdraw 501 RUB", err.Error())
	store.AssertNumberOfCalls(t, "AdjustBalance", 1)
}

func TestTransfer_DepositFails_WithdrawalIsCompensated(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(-100)).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 400), nil).Once()
	store.On("AdjustBalance", mock.Anything, toUser, toAccount, int64(100)).
		Return(nil, domain.NewAccountNotFoundError(toUser, toAccount)).Once()
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(100)).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 500), nil).Once()
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(100))

	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, "Account 20 of user 2 not found", err.Error())
	store.AssertNumberOfCalls(t, "AdjustBalance", 3)
	store.AssertExpectations(t)
}

func TestTransfer_CompensationRunsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(-100)).
		Run(func(mock.Arguments) { cancel() }).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 400), nil).Once()
	store.On("AdjustBalance", mock.Anything, toUser, toAccount, int64(100)).
		Return(nil, context.Canceled).Once()
	store.On("AdjustBalance", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), fromUser, fromAccount, int64(100)).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 500), nil).Once()
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(ctx, fromUser, transferRequest(100))

	require.ErrorIs(t, err, context.Canceled)
	store.AssertExpectations(t)
}

func TestTransfer_CompensationFails_BothErrorsSurface(t *testing.T) {
	store := &mockStore{}
	expectAccounts(store, domain.CurrencyRUB, domain.CurrencyRUB)
	compErr := errors.New("store unavailable")
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(-100)).
		Return(domain.NewAccount(fromAccount, fromUser, domain.CurrencyRUB, 400), nil).Once()
	store.On("AdjustBalance", mock.Anything, toUser, toAccount, int64(100)).
		Return(nil, domain.NewAccountNotFoundError(toUser, toAccount)).Once()
	store.On("AdjustBalance", mock.Anything, fromUser, fromAccount, int64(100)).
		Return(nil, compErr).Once()
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(100))

	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	require.ErrorIs(t, err, compErr)
}

func TestTransfer_Mover_SingleAtomicStep(t *testing.T) {
	store := &mockMoverStore{}
	expectAccounts(&store.mockStore, domain.CurrencyRUB, domain.CurrencyRUB)
	store.On("Move", mock.Anything, usecase.MoveRequest{
		FromUserID:    fromUser,
		FromAccountID: fromAccount,
		ToUserID:      toUser,
		ToAccountID:   toAccount,
		Amount:        500,
	}).Return(nil).Once()
	core := usecase.NewCoreUseCase(store, nil)

	require.NoError(t, core.Transfer(context.Background(), fromUser, transferRequest(500)))
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "AdjustBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransfer_Mover_InvalidAmountBeforeMove(t *testing.T) {
	store := &mockMoverStore{}
	expectAccounts(&store.mockStore, domain.CurrencyRUB, domain.CurrencyRUB)
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(-1))

	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	store.AssertNotCalled(t, "Move", mock.Anything, mock.Anything)
}

func TestTransfer_Mover_ErrorPropagates(t *testing.T) {
	store := &mockMoverStore{}
	expectAccounts(&store.mockStore, domain.CurrencyRUB, domain.CurrencyRUB)
	store.On("Move", mock.Anything, mock.Anything).
		Return(domain.NewInsufficientFundsError(900, domain.CurrencyRUB)).Once()
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(900))

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "Cannot withdraw 900 RUB", err.Error())
}

func TestTransfer_Mover_WrongCurrencyBeforeMove(t *testing.T) {
	store := &mockMoverStore{}
	expectAccounts(&store.mockStore, domain.CurrencyUSD, domain.CurrencyEUR)
	core := usecase.NewCoreUseCase(store, nil)

	err := core.Transfer(context.Background(), fromUser, transferRequest(10))

	require.ErrorIs(t, err, domain.ErrWrongCurrency)
	store.AssertNotCalled(t, "Move", mock.Anything, mock.Anything)
}
