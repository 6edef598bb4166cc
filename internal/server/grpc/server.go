// Package grpcserver exposes the WhisperChain+ gRPC API handlers.
package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc/peer"

	"github.com/whisperchain/whisperchain/internal/api"
	"github.com/whisperchain/whisperchain/internal/audit"
	"github.com/whisperchain/whisperchain/internal/convert"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/rules"
	"github.com/whisperchain/whisperchain/internal/service"
)

// Services groups the application services the handlers delegate to.
type Services struct {
	Users        *service.UserService
	Verification *service.VerificationService
	Rounds       *service.RoundService
	Messages     *service.MessageService
	Moderation   *service.ModerationService
	Audit        *audit.Recorder
}

// Server wires services into gRPC handlers.
type Server struct {
	svc Services
}

var _ api.WhisperChainServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(svc Services) *Server {
	return &Server{svc: svc}
}

func actor(ctx context.Context) model.Actor {
	a, _ := ActorFromCtx(ctx)
	return a
}

// remoteHost returns the peer host without port, so attempts from one client
// share a limiter slot across connections.
func remoteHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// --- Accounts ---

// Register creates an account.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.UserResponse, error) {
	u, err := s.svc.Users.Register(ctx, req.Email, req.Name, req.Role, req.PublicKey)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UserResponse{User: convert.ToAPIUser(*u)}, nil
}

// RequestCode mails a verification code.
func (s *Server) RequestCode(ctx context.Context, req *api.RequestCodeRequest) (*api.Empty, error) {
	if err := s.svc.Verification.RequestCode(ctx, req.Email); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// VerifyCode exchanges a code for a session.
func (s *Server) VerifyCode(ctx context.Context, req *api.VerifyCodeRequest) (*api.SessionResponse, error) {
	sess, err := s.svc.Verification.VerifyCode(ctx, req.Email, req.Code, remoteHost(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.SessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: convert.ToAPIUser(sess.User)}, nil
}

// ServerPublicKey returns the key server copies are sealed with.
func (s *Server) ServerPublicKey(context.Context, *api.Empty) (*api.KeyResponse, error) {
	return &api.KeyResponse{PublicKey: s.svc.Moderation.ServerPublicKey()}, nil
}

// Profile returns the caller's account.
func (s *Server) Profile(ctx context.Context, _ *api.Empty) (*api.UserResponse, error) {
	u, err := s.svc.Users.Profile(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UserResponse{User: convert.ToAPIUser(*u)}, nil
}

// SetPublicKey replaces the caller's messaging key.
func (s *Server) SetPublicKey(ctx context.Context, req *api.KeyRequest) (*api.Empty, error) {
	if err := s.svc.Users.SetPublicKey(ctx, actor(ctx), req.PublicKey); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// GetPublicKey returns another user's messaging key.
func (s *Server) GetPublicKey(ctx context.Context, req *api.UserRequest) (*api.KeyResponse, error) {
	key, err := s.svc.Users.GetPublicKey(ctx, actor(ctx), req.UID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.KeyResponse{PublicKey: key}, nil
}

// RegisterModeratorKey stores the caller's moderation key.
func (s *Server) RegisterModeratorKey(ctx context.Context, req *api.KeyRequest) (*api.Empty, error) {
	if err := s.svc.Moderation.RegisterModeratorKey(ctx, actor(ctx), req.PublicKey); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// --- Administration ---

// AssignRole sets a user's role.
func (s *Server) AssignRole(ctx context.Context, req *api.AssignRoleRequest) (*api.Empty, error) {
	if err := s.svc.Users.AssignRole(ctx, actor(ctx), req.UID, req.Role); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// PendingUsers lists accounts waiting for approval.
func (s *Server) PendingUsers(ctx context.Context, _ *api.Empty) (*api.UsersResponse, error) {
	us, err := s.svc.Users.PendingUsers(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.UsersResponse{Users: convert.ToAPIUsers(us)}, nil
}

// MakeModeratorIdle demotes a moderator.
func (s *Server) MakeModeratorIdle(ctx context.Context, req *api.UserRequest) (*api.Empty, error) {
	if err := s.svc.Users.MakeModeratorIdle(ctx, actor(ctx), req.UID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// ReactivateModerator restores a former moderator.
func (s *Server) ReactivateModerator(ctx context.Context, req *api.UserRequest) (*api.Empty, error) {
	if err := s.svc.Users.ReactivateModerator(ctx, actor(ctx), req.UID); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// SetSuspended suspends or reinstates a user.
func (s *Server) SetSuspended(ctx context.Context, req *api.SetSuspendedRequest) (*api.Empty, error) {
	if err := s.svc.Moderation.SetSuspended(ctx, actor(ctx), req.UID, req.Suspended); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

// --- Rounds ---

// StartRound opens the next round.
func (s *Server) StartRound(ctx context.Context, _ *api.Empty) (*api.RoundResponse, error) {
	rd, issued, err := s.svc.Rounds.Start(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RoundResponse{Round: convert.ToAPIRound(rd), TokensIssued: issued}, nil
}

// EndRound closes the active round.
func (s *Server) EndRound(ctx context.Context, _ *api.Empty) (*api.RoundResponse, error) {
	rd, err := s.svc.Rounds.End(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RoundResponse{Round: convert.ToAPIRound(rd)}, nil
}

// ActiveRound returns the active round.
func (s *Server) ActiveRound(ctx context.Context, _ *api.Empty) (*api.RoundResponse, error) {
	rd, err := s.svc.Rounds.Active(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.RoundResponse{Round: convert.ToAPIRound(*rd)}, nil
}

// CurrentToken returns the caller's token for the active round.
func (s *Server) CurrentToken(ctx context.Context, _ *api.Empty) (*api.TokenResponse, error) {
	t, err := s.svc.Messages.CurrentToken(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TokenResponse{Token: convert.ToAPIToken(*t)}, nil
}

// --- Messages ---

// SendMessage spends a token to deliver a ciphertext.
func (s *Server) SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.MessageResponse, error) {
	m, err := s.svc.Messages.Send(ctx, actor(ctx), req.Token, req.RecipientUID, req.Ciphertext)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.MessageResponse{Message: convert.ToAPIMessage(m)}, nil
}

// Inbox pages through received messages.
func (s *Server) Inbox(ctx context.Context, req *api.PageRequest) (*api.MessagePageResponse, error) {
	p := convert.FromAPIPage(req)
	out, err := s.svc.Messages.Inbox(ctx, actor(ctx), p)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIMessagePage(out, rules.NormalizePage(p).Page), nil
}

// SentMessages pages through sent messages.
func (s *Server) SentMessages(ctx context.Context, req *api.PageRequest) (*api.MessagePageResponse, error) {
	p := convert.FromAPIPage(req)
	out, err := s.svc.Messages.Sent(ctx, actor(ctx), p)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIMessagePage(out, rules.NormalizePage(p).Page), nil
}

// MarkRead marks every received message as read.
func (s *Server) MarkRead(ctx context.Context, _ *api.Empty) (*api.CountResponse, error) {
	n, err := s.svc.Messages.MarkRead(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CountResponse{Count: n}, nil
}

// UnreadCount counts unread received messages.
func (s *Server) UnreadCount(ctx context.Context, _ *api.Empty) (*api.CountResponse, error) {
	n, err := s.svc.Messages.UnreadCount(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CountResponse{Count: n}, nil
}

// --- Moderation ---

// FlagMessage reports a received message.
func (s *Server) FlagMessage(ctx context.Context, req *api.FlagMessageRequest) (*api.FlaggedResponse, error) {
	f, err := s.svc.Messages.Flag(ctx, actor(ctx), service.FlagInput{
		MessageID:     req.MessageID,
		ServerContent: req.ServerContent,
		Envelope:      req.Envelope,
		Reason:        req.Reason,
		Severity:      req.Severity,
		Tags:          req.Tags,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.FlaggedResponse{Flagged: convert.ToAPIFlagged(f)}, nil
}

// UnflagMessage withdraws a pending report.
func (s *Server) UnflagMessage(ctx context.Context, req *api.MessageIDRequest) (*api.FlaggedResponse, error) {
	f, err := s.svc.Messages.Unflag(ctx, actor(ctx), req.MessageID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.FlaggedResponse{Flagged: convert.ToAPIFlagged(f)}, nil
}

// ListFlagged returns queue entries sealed for the calling moderator.
func (s *Server) ListFlagged(ctx context.Context, req *api.ListFlaggedRequest) (*api.FlaggedListResponse, error) {
	views, err := s.svc.Moderation.ListFlagged(ctx, actor(ctx), req.Status, model.Page{Page: req.Page, Limit: req.Limit})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.FlaggedListResponse{Items: convert.ToAPIFlaggedViews(views)}, nil
}

// CountFlagged counts pending entries.
func (s *Server) CountFlagged(ctx context.Context, _ *api.Empty) (*api.CountResponse, error) {
	n, err := s.svc.Moderation.CountFlagged(ctx, actor(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CountResponse{Count: n}, nil
}

// Moderate resolves a pending entry.
func (s *Server) Moderate(ctx context.Context, req *api.ModerateRequest) (*api.FlaggedResponse, error) {
	f, err := s.svc.Moderation.Moderate(ctx, actor(ctx), req.MessageID, req.Action, req.Note)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.FlaggedResponse{Flagged: convert.ToAPIFlagged(f)}, nil
}

// FreezeToken disables a sending token.
func (s *Server) FreezeToken(ctx context.Context, req *api.TokenRequest) (*api.TokenResponse, error) {
	t, err := s.svc.Moderation.FreezeToken(ctx, actor(ctx), req.Token)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.TokenResponse{Token: convert.ToAPIToken(*t)}, nil
}

// ListAudit returns audit entries, newest first.
func (s *Server) ListAudit(ctx context.Context, req *api.ListAuditRequest) (*api.AuditResponse, error) {
	f, err := convert.FromAPIAuditFilter(req)
	if err != nil {
		return nil, toStatus(err)
	}
	entries, err := s.svc.Audit.List(ctx, actor(ctx), f)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.AuditResponse{Entries: convert.ToAPIAudit(entries)}, nil
}
