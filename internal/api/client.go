package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed WhisperChain client over any gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Register calls the Register RPC.
func (c *Client) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Register", in, opts)
}

// RequestCode calls the RequestCode RPC.
func (c *Client) RequestCode(ctx context.Context, in *RequestCodeRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "RequestCode", in, opts)
}

// VerifyCode calls the VerifyCode RPC.
func (c *Client) VerifyCode(ctx context.Context, in *VerifyCodeRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "VerifyCode", in, opts)
}

// ServerPublicKey calls the ServerPublicKey RPC.
func (c *Client) ServerPublicKey(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*KeyResponse, error) {
	return invoke[KeyResponse](ctx, c.cc, "ServerPublicKey", in, opts)
}

// Profile calls the Profile RPC.
func (c *Client) Profile(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "Profile", in, opts)
}

// SetPublicKey calls the SetPublicKey RPC.
func (c *Client) SetPublicKey(ctx context.Context, in *KeyRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "SetPublicKey", in, opts)
}

// GetPublicKey calls the GetPublicKey RPC.
func (c *Client) GetPublicKey(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*KeyResponse, error) {
	return invoke[KeyResponse](ctx, c.cc, "GetPublicKey", in, opts)
}

// RegisterModeratorKey calls the RegisterModeratorKey RPC.
func (c *Client) RegisterModeratorKey(ctx context.Context, in *KeyRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "RegisterModeratorKey", in, opts)
}

// AssignRole calls the AssignRole RPC.
func (c *Client) AssignRole(ctx context.Context, in *AssignRoleRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "AssignRole", in, opts)
}

// PendingUsers calls the PendingUsers RPC.
func (c *Client) PendingUsers(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*UsersResponse, error) {
	return invoke[UsersResponse](ctx, c.cc, "PendingUsers", in, opts)
}

// MakeModeratorIdle calls the MakeModeratorIdle RPC.
func (c *Client) MakeModeratorIdle(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "MakeModeratorIdle", in, opts)
}

// ReactivateModerator calls the ReactivateModerator RPC.
func (c *Client) ReactivateModerator(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "ReactivateModerator", in, opts)
}

// SetSuspended calls the SetSuspended RPC.
func (c *Client) SetSuspended(ctx context.Context, in *SetSuspendedRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "SetSuspended", in, opts)
}

// StartRound calls the StartRound RPC.
func (c *Client) StartRound(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RoundResponse, error) {
	return invoke[RoundResponse](ctx, c.cc, "StartRound", in, opts)
}

// EndRound calls the EndRound RPC.
func (c *Client) EndRound(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RoundResponse, error) {
	return invoke[RoundResponse](ctx, c.cc, "EndRound", in, opts)
}

// ActiveRound calls the ActiveRound RPC.
func (c *Client) ActiveRound(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*RoundResponse, error) {
	return invoke[RoundResponse](ctx, c.cc, "ActiveRound", in, opts)
}

// CurrentToken calls the CurrentToken RPC.
func (c *Client) CurrentToken(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, "CurrentToken", in, opts)
}

// SendMessage calls the SendMessage RPC.
func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, "SendMessage", in, opts)
}

// Inbox calls the Inbox RPC.
func (c *Client) Inbox(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (*MessagePageResponse, error) {
	return invoke[MessagePageResponse](ctx, c.cc, "Inbox", in, opts)
}

// SentMessages calls the SentMessages RPC.
func (c *Client) SentMessages(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (*MessagePageResponse, error) {
	return invoke[MessagePageResponse](ctx, c.cc, "SentMessages", in, opts)
}

// MarkRead calls the MarkRead RPC.
func (c *Client) MarkRead(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*CountResponse, error) {
	return invoke[CountResponse](ctx, c.cc, "MarkRead", in, opts)
}

// UnreadCount calls the UnreadCount RPC.
func (c *Client) UnreadCount(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*CountResponse, error) {
	return invoke[CountResponse](ctx, c.cc, "UnreadCount", in, opts)
}

// FlagMessage calls the FlagMessage RPC.
func (c *Client) FlagMessage(ctx context.Context, in *FlagMessageRequest, opts ...grpc.CallOption) (*FlaggedResponse, error) {
	return invoke[FlaggedResponse](ctx, c.cc, "FlagMessage", in, opts)
}

// UnflagMessage calls the UnflagMessage RPC.
func (c *Client) UnflagMessage(ctx context.Context, in *MessageIDRequest, opts ...grpc.CallOption) (*FlaggedResponse, error) {
	return invoke[FlaggedResponse](ctx, c.cc, "UnflagMessage", in, opts)
}

// ListFlagged calls the ListFlagged RPC.
func (c *Client) ListFlagged(ctx context.Context, in *ListFlaggedRequest, opts ...grpc.CallOption) (*FlaggedListResponse, error) {
	return invoke[FlaggedListResponse](ctx, c.cc, "ListFlagged", in, opts)
}

// CountFlagged calls the CountFlagged RPC.
func (c *Client) CountFlagged(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*CountResponse, error) {
	return invoke[CountResponse](ctx, c.cc, "CountFlagged", in, opts)
}

// Moderate calls the Moderate RPC.
func (c *Client) Moderate(ctx context.Context, in *ModerateRequest, opts ...grpc.CallOption) (*FlaggedResponse, error) {
	return invoke[FlaggedResponse](ctx, c.cc, "Moderate", in, opts)
}

// FreezeToken calls the FreezeToken RPC.
func (c *Client) FreezeToken(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, "FreezeToken", in, opts)
}

// ListAudit calls the ListAudit RPC.
func (c *Client) ListAudit(ctx context.Context, in *ListAuditRequest, opts ...grpc.CallOption) (*AuditResponse, error) {
	return invoke[AuditResponse](ctx, c.cc, "ListAudit", in, opts)
}
