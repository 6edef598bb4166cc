package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeQuerier answers the two limiter queries from fixed values.
type fakeQuerier struct {
	err          error
	blockedUntil time.Time
	fails        int

	lastExec string
	execArgs []any
	execErr  error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExec, f.execArgs = sql, args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		if f.err != nil {
			return f.err
		}
		switch {
		case strings.Contains(sql, "SELECT blocked_until"):
			*(dest[0].(*time.Time)) = f.blockedUntil
		case strings.Contains(sql, "RETURNING fail_count"):
			*(dest[0].(*int)) = f.fails
		default:
			return errors.New("unexpected query")
		}
		return nil
	}}
}

var testPolicy = Policy{Window: 5 * time.Minute, MaxFails: 5, BlockFor: 5 * time.Minute}

func TestPG_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		q       *fakeQuerier
		allowed bool
		wantErr bool
	}{
		{"no row", &fakeQuerier{err: pgx.ErrNoRows}, true, false},
		{"epoch", &fakeQuerier{blockedUntil: time.Unix(0, 0)}, true, false},
		{"blocked", &fakeQuerier{blockedUntil: now.Add(3 * time.Minute)}, false, false},
		{"db error", &fakeQuerier{err: errors.New("boom")}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewPG(tc.q, testPolicy)
			l.now = func() time.Time { return now }
			ok, wait, err := l.Allow(context.Background(), "a@b.c", []byte("h"))
			if (err != nil) != tc.wantErr || ok != tc.allowed {
				t.Fatalf("ok=%v wait=%v err=%v", ok, wait, err)
			}
			if tc.name == "blocked" && wait != 3*time.Minute {
				t.Fatalf("retry-after = %v", wait)
			}
		})
	}
}

func TestPG_Success(t *testing.T) {
	q := &fakeQuerier{}
	if err := NewPG(q, testPolicy).Success(context.Background(), "a@b.c", []byte("h")); err != nil {
		t.Fatalf("success: %v", err)
	}
	if !strings.Contains(q.lastExec, "INSERT INTO verify_attempts") {
		t.Fatalf("unexpected exec: %s", q.lastExec)
	}

	q.execErr = errors.New("exec fail")
	if err := NewPG(q, testPolicy).Success(context.Background(), "a@b.c", []byte("h")); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestPG_Failure(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	q := &fakeQuerier{fails: 4}
	l := NewPG(q, testPolicy)
	blocked, _, err := l.Failure(context.Background(), "a@b.c", []byte("h"))
	if err != nil || blocked || q.lastExec != "" {
		t.Fatalf("below threshold: blocked=%v err=%v exec=%q", blocked, err, q.lastExec)
	}

	q.fails = 5
	l.now = func() time.Time { return now }
	blocked, wait, err := l.Failure(context.Background(), "a@b.c", []byte("h"))
	if err != nil || !blocked || wait != 5*time.Minute {
		t.Fatalf("at threshold: blocked=%v wait=%v err=%v", blocked, wait, err)
	}
	if !strings.Contains(q.lastExec, "SET blocked_until") || !q.execArgs[2].(time.Time).Equal(now.Add(5*time.Minute)) {
		t.Fatalf("must set blocked_until, exec=%s args=%v", q.lastExec, q.execArgs)
	}

	q.err = errors.New("query error")
	if _, _, err := l.Failure(context.Background(), "a@b.c", []byte("h")); err == nil {
		t.Fatalf("want error from RETURNING")
	}
}

func TestMemory_LockoutAndReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(testPolicy)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	h := HashClient("10.0.0.1:5000")

	for i := 1; i < testPolicy.MaxFails; i++ {
		if blocked, _, _ := l.Failure(ctx, "a@b.c", h); blocked {
			t.Fatalf("blocked after %d failures", i)
		}
	}
	if blocked, _, _ := l.Failure(ctx, "a@b.c", h); !blocked {
		t.Fatalf("fifth failure must block")
	}
	if ok, wait, _ := l.Allow(ctx, "a@b.c", h); ok || wait != testPolicy.BlockFor {
		t.Fatalf("allow while blocked: ok=%v wait=%v", ok, wait)
	}
	if ok, _, _ := l.Allow(ctx, "a@b.c", HashClient("10.0.0.2:5000")); !ok {
		t.Fatalf("other clients are unaffected")
	}

	now = now.Add(testPolicy.BlockFor + time.Second)
	if ok, _, _ := l.Allow(ctx, "a@b.c", h); !ok {
		t.Fatalf("block must expire")
	}
	if blocked, _, _ := l.Failure(ctx, "a@b.c", h); blocked {
		t.Fatalf("window elapsed, count restarts")
	}
	_ = l.Success(ctx, "a@b.c", h)
	if ok, _, _ := l.Allow(ctx, "a@b.c", h); !ok {
		t.Fatalf("success clears state")
	}
}

func TestMemory_AccountWideSlot(t *testing.T) {
	l := NewMemory(testPolicy)
	ctx := context.Background()

	for i := 1; i <= testPolicy.MaxFails; i++ {
		h := HashClient(fmt.Sprintf("10.0.0.%d:5000", i))
		if blocked, _, _ := l.Failure(ctx, "a@b.c", h); blocked {
			t.Fatalf("single failure per client must not block, client %d", i)
		}
		blocked, _, _ := l.Failure(ctx, "a@b.c", AccountWide)
		if blocked != (i == testPolicy.MaxFails) {
			t.Fatalf("account slot after %d failures: blocked=%v", i, blocked)
		}
	}
	if ok, _, _ := l.Allow(ctx, "a@b.c", AccountWide); ok {
		t.Fatalf("account slot must be blocked")
	}
	if ok, _, _ := l.Allow(ctx, "x@b.c", AccountWide); !ok {
		t.Fatalf("other keys are unaffected")
	}
}

func TestHashClient(t *testing.T) {
	a, b, c := HashClient("1.2.3.4:1"), HashClient("1.2.3.4:1"), HashClient("5.6.7.8:2")
	if string(a) != string(b) || string(a) == string(c) || len(a) != 32 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}
