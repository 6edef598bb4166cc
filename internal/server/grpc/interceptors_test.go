package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/whisperchain/whisperchain/internal/api"
	"github.com/whisperchain/whisperchain/internal/auth"
	"github.com/whisperchain/whisperchain/internal/model"
	"github.com/whisperchain/whisperchain/internal/repository/memory"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	ctx = WithActor(ctx, model.Actor{UID: "u1", Role: model.RoleSender})

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/whisperchain.v1.WhisperChain/Method"}

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, _ := resp.(string); s != "ok" {
		t.Fatalf("resp mismatch: %v", resp)
	}

	wantErr := errors.New("boom")
	hErr := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err = ic(ctx, "req", info, hErr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/whisperchain.v1.WhisperChain/Panic"}

	panicH := func(ctx context.Context, req any) (any, error) {
		panic("oh no")
	}

	_, err := ic(ctx, "req", info, panicH)
	if err == nil {
		t.Fatalf("expected error from panic")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
}

func TestRecoverUnary_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/whisperchain.v1.WhisperChain/Ok"}

	h := func(ctx context.Context, req any) (any, error) { return 42, nil }

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.(int) != 42 {
		t.Fatalf("resp mismatch: %v", resp)
	}
}

func TestLoggingUnary_DurationFieldDoesNotBlock(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/whisperchain.v1.WhisperChain/Sleep"}
	h := func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	}

	start := time.Now()
	resp, err := ic(ctx, "req", info, h)
	if err != nil || resp.(string) != "done" {
		t.Fatalf("unexpected result: %v, %v", resp, err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("duration should reflect handler time")
	}
}

func TestTimeoutUnary_SetsDeadline(t *testing.T) {
	t.Parallel()

	info := &grpc.UnaryServerInfo{FullMethod: "/whisperchain.v1.WhisperChain/Inbox"}
	h := func(ctx context.Context, req any) (any, error) {
		dl, ok := ctx.Deadline()
		if !ok {
			return nil, errors.New("no deadline")
		}
		return time.Until(dl), nil
	}

	resp, err := TimeoutUnary(time.Second)(context.Background(), "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if left := resp.(time.Duration); left <= 0 || left > time.Second {
		t.Fatalf("deadline out of range: %v", left)
	}

	if _, err := TimeoutUnary(0)(context.Background(), "req", info, h); err == nil {
		t.Fatalf("zero timeout must not add a deadline")
	}
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	u := &model.User{UID: "u1", Email: "a@wc.test", Role: model.RoleSender, IsSuspended: true, CreatedAt: time.Now()}
	if err := store.Users().Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	iss := auth.NewIssuer([]byte("k"), time.Hour)
	ic := AuthUnary(iss, store.Users())

	var seen model.Actor
	h := func(ctx context.Context, req any) (any, error) {
		seen, _ = ActorFromCtx(ctx)
		return "ok", nil
	}
	private := &grpc.UnaryServerInfo{FullMethod: api.FullMethod("Profile")}

	if _, err := ic(ctx, "req", &grpc.UnaryServerInfo{FullMethod: api.FullMethod("Register")}, h); err != nil {
		t.Fatalf("public method: %v", err)
	}

	_, err := ic(ctx, "req", private, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("missing token: want Unauthenticated, got %v", err)
	}

	_, err = ic(ctxWithAuth("garbage"), "req", private, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad token: want Unauthenticated, got %v", err)
	}

	ghost, _, err := iss.Issue("ghost")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = ic(ctxWithAuth(ghost), "req", private, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("unknown user: want Unauthenticated, got %v", err)
	}

	tok, _, err := iss.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ic(ctxWithAuth(tok), "req", private, h); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if seen.UID != "u1" || seen.Role != model.RoleSender || !seen.Suspended {
		t.Fatalf("actor not loaded from store: %+v", seen)
	}
}
