package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "whisperchain.v1.WhisperChain"

// FullMethod returns the gRPC method path of name.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// publicMethods are callable without a session.
var publicMethods = map[string]bool{
	"Register":        true,
	"RequestCode":     true,
	"VerifyCode":      true,
	"ServerPublicKey": true,
}

// IsPublic reports whether fullMethod may be called without a session.
func IsPublic(fullMethod string) bool {
	n := len(ServiceName) + 2
	if len(fullMethod) <= n || fullMethod[:n] != "/"+ServiceName+"/" {
		return false
	}
	return publicMethods[fullMethod[n:]]
}

// WhisperChainServer is implemented by the gRPC transport.
type WhisperChainServer interface {
	Register(context.Context, *RegisterRequest) (*UserResponse, error)
	RequestCode(context.Context, *RequestCodeRequest) (*Empty, error)
	VerifyCode(context.Context, *VerifyCodeRequest) (*SessionResponse, error)
	ServerPublicKey(context.Context, *Empty) (*KeyResponse, error)
	Profile(context.Context, *Empty) (*UserResponse, error)
	SetPublicKey(context.Context, *KeyRequest) (*Empty, error)
	GetPublicKey(context.Context, *UserRequest) (*KeyResponse, error)
	RegisterModeratorKey(context.Context, *KeyRequest) (*Empty, error)
	AssignRole(context.Context, *AssignRoleRequest) (*Empty, error)
	PendingUsers(context.Context, *Empty) (*UsersResponse, error)
	MakeModeratorIdle(context.Context, *UserRequest) (*Empty, error)
	ReactivateModerator(context.Context, *UserRequest) (*Empty, error)
	SetSuspended(context.Context, *SetSuspendedRequest) (*Empty, error)
	StartRound(context.Context, *Empty) (*RoundResponse, error)
	EndRound(context.Context, *Empty) (*RoundResponse, error)
	ActiveRound(context.Context, *Empty) (*RoundResponse, error)
	CurrentToken(context.Context, *Empty) (*TokenResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*MessageResponse, error)
	Inbox(context.Context, *PageRequest) (*MessagePageResponse, error)
	SentMessages(context.Context, *PageRequest) (*MessagePageResponse, error)
	MarkRead(context.Context, *Empty) (*CountResponse, error)
	UnreadCount(context.Context, *Empty) (*CountResponse, error)
	FlagMessage(context.Context, *FlagMessageRequest) (*FlaggedResponse, error)
	UnflagMessage(context.Context, *MessageIDRequest) (*FlaggedResponse, error)
	ListFlagged(context.Context, *ListFlaggedRequest) (*FlaggedListResponse, error)
	CountFlagged(context.Context, *Empty) (*CountResponse, error)
	Moderate(context.Context, *ModerateRequest) (*FlaggedResponse, error)
	FreezeToken(context.Context, *TokenRequest) (*TokenResponse, error)
	ListAudit(context.Context, *ListAuditRequest) (*AuditResponse, error)
}

func unary[Req, Resp any](name string, call func(WhisperChainServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WhisperChainServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(WhisperChainServer), ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes the WhisperChain service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WhisperChainServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", WhisperChainServer.Register),
		unary("RequestCode", WhisperChainServer.RequestCode),
		unary("VerifyCode", WhisperChainServer.VerifyCode),
		unary("ServerPublicKey", WhisperChainServer.ServerPublicKey),
		unary("Profile", WhisperChainServer.Profile),
		unary("SetPublicKey", WhisperChainServer.SetPublicKey),
		unary("GetPublicKey", WhisperChainServer.GetPublicKey),
		unary("RegisterModeratorKey", WhisperChainServer.RegisterModeratorKey),
		unary("AssignRole", WhisperChainServer.AssignRole),
		unary("PendingUsers", WhisperChainServer.PendingUsers),
		unary("MakeModeratorIdle", WhisperChainServer.MakeModeratorIdle),
		unary("ReactivateModerator", WhisperChainServer.ReactivateModerator),
		unary("SetSuspended", WhisperChainServer.SetSuspended),
		unary("StartRound", WhisperChainServer.StartRound),
		unary("EndRound", WhisperChainServer.EndRound),
		unary("ActiveRound", WhisperChainServer.ActiveRound),
		unary("CurrentToken", WhisperChainServer.CurrentToken),
		unary("SendMessage", WhisperChainServer.SendMessage),
		unary("Inbox", WhisperChainServer.Inbox),
		unary("SentMessages", WhisperChainServer.SentMessages),
		unary("MarkRead", WhisperChainServer.MarkRead),
		unary("UnreadCount", WhisperChainServer.UnreadCount),
		unary("FlagMessage", WhisperChainServer.FlagMessage),
		unary("UnflagMessage", WhisperChainServer.UnflagMessage),
		unary("ListFlagged", WhisperChainServer.ListFlagged),
		unary("CountFlagged", WhisperChainServer.CountFlagged),
		unary("Moderate", WhisperChainServer.Moderate),
		unary("FreezeToken", WhisperChainServer.FreezeToken),
		unary("ListAudit", WhisperChainServer.ListAudit),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "whisperchain/v1",
}

// RegisterWhisperChainServer registers srv on s.
func RegisterWhisperChainServer(s grpc.ServiceRegistrar, srv WhisperChainServer) {
	s.RegisterService(&ServiceDesc, srv)
}
