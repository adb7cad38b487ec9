package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/JoeShih716/go-account-ledger/internal/app/core/domain"
	grpcpkg "github.com/JoeShih716/go-account-ledger/pkg/grpc"
)

// ServiceName 完整服務名稱
const ServiceName = "ledger.v1.LedgerService"

const (
	methodDeposit      = "/" + ServiceName + "/Deposit"
	methodWithdraw     = "/" + ServiceName + "/Withdraw"
	methodTransfer     = "/" + ServiceName + "/Transfer"
	methodGetAccount   = "/" + ServiceName + "/GetAccount"
	methodOpenAccounts = "/" + ServiceName + "/OpenAccounts"
)

// BalanceRequest 存款 / 提款請求
type BalanceRequest struct {
	UserID    int64 `json:"user_id"`
	AccountID int64 `json:"account_id"`
	Amount    int64 `json:"amount"`
}

// TransferRequest 轉帳請求，UserID 為已驗證的來源使用者
type TransferRequest struct {
	UserID        int64 `json:"user_id"`
	FromAccountID int64 `json:"from_account_id"`
	ToUserID      int64 `json:"to_user_id"`
	ToAccountID   int64 `json:"to_account_id"`
	Amount        int64 `json:"amount"`
}

// TransferResponse 轉帳成功沒有回傳內容
type TransferResponse struct{}

// AccountRequest 查詢單一帳戶
type AccountRequest struct {
	UserID    int64 `json:"user_id"`
	AccountID int64 `json:"account_id"`
}

// OpenAccountsRequest 為使用者開立預設帳戶
type OpenAccountsRequest struct {
	UserID int64 `json:"user_id"`
}

// OpenAccountsResponse 新開立的帳戶 (RUB, USD, EUR 順序)
type OpenAccountsResponse struct {
	Accounts []domain.AccountSnapshot `json:"accounts"`
}

// LedgerServiceServer 服務端需實作的方法
type LedgerServiceServer interface {
	Deposit(context.Context, *BalanceRequest) (*domain.AccountSnapshot, error)
	Withdraw(context.Context, *BalanceRequest) (*domain.AccountSnapshot, error)
	Transfer(context.Context, *TransferRequest) (*TransferResponse, error)
	GetAccount(context.Context, *AccountRequest) (*domain.AccountSnapshot, error)
	OpenAccounts(context.Context, *OpenAccountsRequest) (*OpenAccountsResponse, error)
}

// unaryHandler 產生與 protoc-gen-go-grpc 相同形狀的 MethodHandler
func unaryHandler[Req any, Resp any](fullMethod string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceDesc 手寫的服務描述，訊息以 JSONCodec 編碼
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deposit",
			Handler:    unaryHandler(methodDeposit, LedgerServiceServer.Deposit),
		},
		{
			MethodName: "Withdraw",
			Handler:    unaryHandler(methodWithdraw, LedgerServiceServer.Withdraw),
		},
		{
			MethodName: "Transfer",
			Handler:    unaryHandler(methodTransfer, LedgerServiceServer.Transfer),
		},
		{
			MethodName: "GetAccount",
			Handler:    unaryHandler(methodGetAccount, LedgerServiceServer.GetAccount),
		},
		{
			MethodName: "OpenAccounts",
			Handler:    unaryHandler(methodOpenAccounts, LedgerServiceServer.OpenAccounts),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerServiceClient 客戶端
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient 建立客戶端，每次呼叫都帶上 JSON content-subtype
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(grpcpkg.JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerServiceClient) Deposit(ctx context.Context, in *BalanceRequest, opts ...grpc.CallOption) (*domain.AccountSnapshot, error) {
	return invoke[domain.AccountSnapshot](ctx, c.cc, methodDeposit, in, opts)
}

func (c *LedgerServiceClient) Withdraw(ctx context.Context, in *BalanceRequest, opts ...grpc.CallOption) (*domain.AccountSnapshot, error) {
	return invoke[domain.AccountSnapshot](ctx, c.cc, methodWithdraw, in, opts)
}

func (c *LedgerServiceClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c.cc, methodTransfer, in, opts)
}

func (c *LedgerServiceClient) GetAccount(ctx context.Context, in *AccountRequest, opts ...grpc.CallOption) (*domain.AccountSnapshot, error) {
	return invoke[domain.AccountSnapshot](ctx, c.cc, methodGetAccount, in, opts)
}

func (c *LedgerServiceClient) OpenAccounts(ctx context.Context, in *OpenAccountsRequest, opts ...grpc.CallOption) (*OpenAccountsResponse, error) {
	return invoke[OpenAccountsResponse](ctx, c.cc, methodOpenAccounts, in, opts)
}
