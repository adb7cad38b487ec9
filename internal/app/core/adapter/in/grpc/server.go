package grpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-account-ledger/internal/app/core/usecase"
)

// GrpcServer 將 gRPC 請求轉給 CoreUseCase
// 身分驗證由外部負責，請求中的 user_id 視為已驗證
type GrpcServer struct {
	core *usecase.CoreUseCase
}

func NewGrpcServer(core *usecase.CoreUseCase) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) Deposit(ctx context.Context, req *BalanceRequest) (*domain.AccountSnapshot, error) {
	snap, err := s.core.Deposit(ctx, req.UserID, req.AccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &snap, nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *BalanceRequest) (*domain.AccountSnapshot, error) {
	snap, err := s.core.Withdraw(ctx, req.UserID, req.AccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &snap, nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	err := s.core.Transfer(ctx, req.UserID, domain.TransferRequest{
		FromAccountID: req.FromAccountID,
		ToUserID:      req.ToUserID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransferResponse{}, nil
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *AccountRequest) (*domain.AccountSnapshot, error) {
	snap, err := s.core.GetAccount(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &snap, nil
}

func (s *GrpcServer) OpenAccounts(ctx context.Context, req *OpenAccountsRequest) (*OpenAccountsResponse, error) {
	snaps, err := s.core.OpenDefaultAccounts(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OpenAccountsResponse{Accounts: snaps}, nil
}

// toStatus 將 domain 錯誤轉成 gRPC status，訊息保留原文
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrWrongCurrency), errors.Is(err, domain.ErrUnknownCurrency):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrAccountNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrBalanceOverflow):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrLedgerStopped):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// LoggingInterceptor 記錄每個 RPC 的方法、狀態碼與耗時
// Internal 以上記為 error，其餘業務拒絕記為 info
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("duration", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Debug("rpc", fields...)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			logger.Error("rpc", append(fields, zap.Error(err))...)
		default:
			logger.Info("rpc", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
