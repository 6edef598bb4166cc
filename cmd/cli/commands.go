package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/whisperchain/whisperchain/internal/api"
	"github.com/whisperchain/whisperchain/internal/crypto/chunked"
)

type command func(ctx context.Context, c conn, args []string) error

var commands = map[string]command{
	"keygen":        cmdKeygen,
	"encrypt":       cmdEncrypt,
	"decrypt":       cmdDecrypt,
	"register":      cmdRegister,
	"login":         cmdLogin,
	"whoami":        cmdWhoami,
	"set-key":       cmdSetKey,
	"moderator-key": cmdModeratorKey,
	"server-key":    cmdServerKey,
	"token":         cmdToken,
	"send":          cmdSend,
	"inbox":         cmdInbox,
	"sent":          cmdSent,
	"read":          cmdMarkRead,
	"unread":        cmdUnread,
	"flag":          cmdFlag,
	"unflag":        cmdUnflag,
	"queue":         cmdQueue,
	"queue-count":   cmdQueueCount,
	"moderate":      cmdModerate,
	"freeze":        cmdFreeze,
	"suspend":       cmdSuspend,
	"pending":       cmdPending,
	"assign-role":   cmdAssignRole,
	"idle":          cmdIdle,
	"reactivate":    cmdReactivate,
	"round":         cmdRound,
	"audit":         cmdAudit,
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// need returns an error naming the first empty required flag.
func need(fs *pflag.FlagSet, names ...string) error {
	for _, n := range names {
		if v, _ := fs.GetString(n); strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s: --%s is required", fs.Name(), n)
		}
	}
	return nil
}

// ---- local crypto ----

func cmdKeygen(_ context.Context, _ conn, args []string) error {
	fs := newFlags("keygen")
	out := fs.String("out", "", "output prefix (writes <prefix>.pub and <prefix>.key)")
	bits := fs.Int("bits", chunked.DefaultBits, "RSA modulus size")
	protect := fs.Bool("protect", false, "wrap the private key with a passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "out"); err != nil {
		return err
	}
	var pass []byte
	if *protect {
		var err error
		if pass, err = readPassphrase("new passphrase: "); err != nil {
			return err
		}
	}
	pub, priv, err := writeKeyPair(*out, *bits, pass)
	if err != nil {
		return err
	}
	printJSON(map[string]string{"public": pub, "private": priv})
	return nil
}

func cmdEncrypt(_ context.Context, _ conn, args []string) error {
	fs := newFlags("encrypt")
	key := fs.String("key", "", "public key file")
	file := fs.String("file", "-", "plaintext file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "key"); err != nil {
		return err
	}
	pub, err := loadPublicKey(*key)
	if err != nil {
		return err
	}
	pt, err := readAll(*file)
	if err != nil {
		return err
	}
	ct, err := seal(pub, pt)
	if err != nil {
		return err
	}
	fmt.Println(ct)
	return nil
}

func cmdDecrypt(_ context.Context, _ conn, args []string) error {
	fs := newFlags("decrypt")
	key := fs.String("key", "", "private key file")
	file := fs.String("file", "-", "ciphertext file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "key"); err != nil {
		return err
	}
	priv, err := loadPrivateKey(*key)
	if err != nil {
		return err
	}
	ct, err := readAll(*file)
	if err != nil {
		return err
	}
	pt, err := chunked.Decrypt(priv, strings.TrimSpace(string(ct)))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(pt)
	return err
}

// ---- accounts ----

func cmdRegister(ctx context.Context, c conn, args []string) error {
	fs := newFlags("register")
	email := fs.String("email", "", "email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "recipient", "sender, recipient or moderator")
	key := fs.String("key", "", "messaging public key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "email", "name"); err != nil {
		return err
	}
	req := &api.RegisterRequest{Email: *email, Name: *name, Role: *role}
	if *key != "" {
		pub, err := loadPublicKey(*key)
		if err != nil {
			return err
		}
		req.PublicKey = pub
	}
	cc, cli, err := c.dial(ctx, "")
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.Register(ctx, req)
	if err != nil {
		return err
	}
	printJSON(resp.User)
	return nil
}

func cmdLogin(ctx context.Context, c conn, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "email")
	code := fs.String("code", "", "verification code (requested and prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "email"); err != nil {
		return err
	}
	cc, cli, err := c.dial(ctx, "")
	if err != nil {
		return err
	}
	defer cc.Close()

	if *code == "" {
		if _, err := cli.RequestCode(ctx, &api.RequestCodeRequest{Email: *email}); err != nil {
			return err
		}
		if *code, err = readLine("code sent to " + *email + ": "); err != nil {
			return err
		}
	}
	resp, err := cli.VerifyCode(ctx, &api.VerifyCodeRequest{Email: *email, Code: *code})
	if err != nil {
		return err
	}
	if err := saveSession(sessionFile{
		AccessToken: resp.Token,
		ExpiresAt:   resp.ExpiresAt,
		UID:         resp.User.UID,
		Email:       resp.User.Email,
	}); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func cmdWhoami(ctx context.Context, c conn, _ []string) error {
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.Profile(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	printJSON(resp.User)
	return nil
}

// keyCall uploads a public key file through call.
func keyCall(ctx context.Context, c conn, name string, args []string,
	call func(context.Context, *api.Client, *api.KeyRequest) error,
) error {
	fs := newFlags(name)
	key := fs.String("key", "", "public key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "key"); err != nil {
		return err
	}
	pub, err := loadPublicKey(*key)
	if err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	if err := call(ctx, cli, &api.KeyRequest{PublicKey: pub}); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func cmdSetKey(ctx context.Context, c conn, args []string) error {
	return keyCall(ctx, c, "set-key", args, func(ctx context.Context, cli *api.Client, req *api.KeyRequest) error {
		_, err := cli.SetPublicKey(ctx, req)
		return err
	})
}

func cmdModeratorKey(ctx context.Context, c conn, args []string) error {
	return keyCall(ctx, c, "moderator-key", args, func(ctx context.Context, cli *api.Client, req *api.KeyRequest) error {
		_, err := cli.RegisterModeratorKey(ctx, req)
		return err
	})
}

func cmdServerKey(ctx context.Context, c conn, _ []string) error {
	cc, cli, err := c.dial(ctx, "")
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.ServerPublicKey(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	fmt.Println(resp.PublicKey)
	return nil
}

// ---- messaging ----

func cmdToken(ctx context.Context, c conn, _ []string) error {
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.CurrentToken(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	printJSON(resp.Token)
	return nil
}

func cmdSend(ctx context.Context, c conn, args []string) error {
	fs := newFlags("send")
	to := fs.String("to", "", "recipient uid")
	file := fs.String("file", "", "message file ('-'=stdin)")
	text := fs.String("text", "", "message text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "to"); err != nil {
		return err
	}
	pt := []byte(*text)
	if *file != "" {
		var err error
		if pt, err = readAll(*file); err != nil {
			return err
		}
	}
	if len(pt) == 0 {
		return errors.New("send: --text or --file is required")
	}

	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	key, err := cli.GetPublicKey(ctx, &api.UserRequest{UID: *to})
	if err != nil {
		return err
	}
	ct, err := seal(key.PublicKey, pt)
	if err != nil {
		return err
	}
	tok, err := cli.CurrentToken(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	resp, err := cli.SendMessage(ctx, &api.SendMessageRequest{
		Token:        tok.Token.Token,
		RecipientUID: *to,
		Ciphertext:   ct,
	})
	if err != nil {
		return err
	}
	printJSON(map[string]any{"id": resp.Message.ID, "round": resp.Message.Round, "sentAt": resp.Message.SentAt})
	return nil
}

// inboxRow is a decrypted mailbox line.
type inboxRow struct {
	ID          string    `json:"id"`
	SenderToken string    `json:"senderToken"`
	Round       int64     `json:"round"`
	SentAt      time.Time `json:"sentAt"`
	IsRead      bool      `json:"isRead"`
	Flagged     bool      `json:"flagged"`
	Text        string    `json:"text,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// decryptPage opens each message when open is set; failures are reported per row.
func decryptPage(msgs []api.Message, open func(string) ([]byte, error)) []inboxRow {
	rows := make([]inboxRow, 0, len(msgs))
	for _, m := range msgs {
		r := inboxRow{
			ID:          m.ID,
			SenderToken: m.SenderToken,
			Round:       m.Round,
			SentAt:      m.SentAt,
			IsRead:      m.IsRead,
			Flagged:     m.Flagged,
		}
		if open != nil {
			if pt, err := open(m.Ciphertext); err != nil {
				r.Error = "cannot decrypt"
			} else {
				r.Text = string(pt)
			}
		}
		rows = append(rows, r)
	}
	return rows
}

func pageFlags(fs *pflag.FlagSet) (page, limit *int) {
	return fs.Int("page", 1, "page number"), fs.Int("limit", 0, "page size (server default when 0)")
}

func cmdInbox(ctx context.Context, c conn, args []string) error {
	fs := newFlags("inbox")
	page, limit := pageFlags(fs)
	key := fs.String("key", "", "private key file to decrypt with")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var open func(string) ([]byte, error)
	if *key != "" {
		priv, err := loadPrivateKey(*key)
		if err != nil {
			return err
		}
		open = func(ct string) ([]byte, error) { return chunked.Decrypt(priv, ct) }
	}

	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.Inbox(ctx, &api.PageRequest{Page: *page, Limit: *limit})
	if err != nil {
		return err
	}
	printJSON(map[string]any{
		"total":    resp.Total,
		"page":     resp.Page,
		"hasMore":  resp.HasMore,
		"messages": decryptPage(resp.Messages, open),
	})
	return nil
}

func cmdSent(ctx context.Context, c conn, args []string) error {
	fs := newFlags("sent")
	page, limit := pageFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.SentMessages(ctx, &api.PageRequest{Page: *page, Limit: *limit})
	if err != nil {
		return err
	}
	printJSON(map[string]any{
		"total":    resp.Total,
		"page":     resp.Page,
		"hasMore":  resp.HasMore,
		"messages": decryptPage(resp.Messages, nil),
	})
	return nil
}

func cmdMarkRead(ctx context.Context, c conn, _ []string) error {
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.MarkRead(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	fmt.Println(resp.Count)
	return nil
}

func cmdUnread(ctx context.Context, c conn, _ []string) error {
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.UnreadCount(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	fmt.Println(resp.Count)
	return nil
}

// findMessage pages through the inbox until id is found.
func findMessage(ctx context.Context, cli *api.Client, id string) (*api.Message, error) {
	for page := 1; ; page++ {
		resp, err := cli.Inbox(ctx, &api.PageRequest{Page: page, Limit: 100})
		if err != nil {
			return nil, err
		}
		for i := range resp.Messages {
			if resp.Messages[i].ID == id {
				return &resp.Messages[i], nil
			}
		}
		if !resp.HasMore {
			return nil, fmt.Errorf("message %s not in inbox", id)
		}
	}
}

func cmdFlag(ctx context.Context, c conn, args []string) error {
	fs := newFlags("flag")
	id := fs.String("id", "", "message id")
	key := fs.String("key", "", "messaging private key file")
	reason := fs.String("reason", "", "reason")
	severity := fs.String("severity", "medium", "low, medium or high")
	tags := fs.StringSlice("tag", nil, "tag (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "id", "key"); err != nil {
		return err
	}
	priv, err := loadPrivateKey(*key)
	if err != nil {
		return err
	}

	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	msg, err := findMessage(ctx, cli, *id)
	if err != nil {
		return err
	}
	pt, err := chunked.Decrypt(priv, msg.Ciphertext)
	if err != nil {
		return fmt.Errorf("decrypt message: %w", err)
	}
	srv, err := cli.ServerPublicKey(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	// The server copy is the plaintext sealed once for the server key.
	sc, err := seal(srv.PublicKey, pt)
	if err != nil {
		return err
	}
	resp, err := cli.FlagMessage(ctx, &api.FlagMessageRequest{
		MessageID:     *id,
		ServerContent: sc,
		Envelope:      "v1",
		Reason:        *reason,
		Severity:      *severity,
		Tags:          *tags,
	})
	if err != nil {
		return err
	}
	printJSON(resp.Flagged)
	return nil
}

func cmdUnflag(ctx context.Context, c conn, args []string) error {
	fs := newFlags("unflag")
	id := fs.String("id", "", "message id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "id"); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.UnflagMessage(ctx, &api.MessageIDRequest{MessageID: *id})
	if err != nil {
		return err
	}
	printJSON(resp.Flagged)
	return nil
}

// ---- moderation ----

// openQueue replaces moderator ciphertexts with plaintext when priv is set.
func openQueue(items []api.FlaggedMessage, open func(string) ([]byte, error)) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		row := map[string]any{
			"originalMessageId": it.OriginalMessageID,
			"senderUid":         it.SenderUID,
			"senderToken":       it.SenderToken,
			"flaggedAt":         it.FlaggedAt,
			"status":            it.Status,
			"reason":            it.Reason,
			"severity":          it.Severity,
			"tags":              it.Tags,
		}
		switch {
		case it.DecryptionFailed:
			row["error"] = "server could not mediate this message"
		case open == nil:
			row["content"] = it.ModeratorContent
		default:
			if pt, err := open(it.ModeratorContent); err != nil {
				row["error"] = "cannot decrypt with moderator key"
			} else {
				row["text"] = string(pt)
			}
		}
		out = append(out, row)
	}
	return out
}

func cmdQueue(ctx context.Context, c conn, args []string) error {
	fs := newFlags("queue")
	st := fs.String("status", "pending", "pending, approved, rejected or dismissed")
	page, limit := pageFlags(fs)
	key := fs.String("key", "", "moderator private key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var open func(string) ([]byte, error)
	if *key != "" {
		priv, err := loadPrivateKey(*key)
		if err != nil {
			return err
		}
		open = func(ct string) ([]byte, error) { return chunked.Decrypt(priv, ct) }
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.ListFlagged(ctx, &api.ListFlaggedRequest{Status: *st, Page: *page, Limit: *limit})
	if err != nil {
		return err
	}
	printJSON(openQueue(resp.Items, open))
	return nil
}

func cmdQueueCount(ctx context.Context, c conn, _ []string) error {
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.CountFlagged(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	fmt.Println(resp.Count)
	return nil
}

func cmdModerate(ctx context.Context, c conn, args []string) error {
	fs := newFlags("moderate")
	id := fs.String("id", "", "original message id")
	action := fs.String("action", "", "approve, reject or suspend_sender")
	note := fs.String("note", "", "note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "id", "action"); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.Moderate(ctx, &api.ModerateRequest{MessageID: *id, Action: *action, Note: *note})
	if err != nil {
		return err
	}
	printJSON(resp.Flagged)
	return nil
}

func cmdFreeze(ctx context.Context, c conn, args []string) error {
	fs := newFlags("freeze")
	tok := fs.String("token", "", "sending token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "token"); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.FreezeToken(ctx, &api.TokenRequest{Token: *tok})
	if err != nil {
		return err
	}
	printJSON(resp.Token)
	return nil
}

func cmdSuspend(ctx context.Context, c conn, args []string) error {
	fs := newFlags("suspend")
	uid := fs.String("uid", "", "user id")
	off := fs.Bool("off", false, "reinstate instead of suspend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "uid"); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	if _, err := cli.SetSuspended(ctx, &api.SetSuspendedRequest{UID: *uid, Suspended: !*off}); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// ---- administration ----

func cmdPending(ctx context.Context, c conn, _ []string) error {
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.PendingUsers(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	printJSON(resp.Users)
	return nil
}

func cmdAssignRole(ctx context.Context, c conn, args []string) error {
	fs := newFlags("assign-role")
	uid := fs.String("uid", "", "user id")
	role := fs.String("role", "", "sender, recipient, moderator or idle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "uid", "role"); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	if _, err := cli.AssignRole(ctx, &api.AssignRoleRequest{UID: *uid, Role: *role}); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// userCall runs a uid-addressed admin call.
func userCall(ctx context.Context, c conn, name string, args []string,
	call func(context.Context, *api.Client, *api.UserRequest) error,
) error {
	fs := newFlags(name)
	uid := fs.String("uid", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := need(fs, "uid"); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	if err := call(ctx, cli, &api.UserRequest{UID: *uid}); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func cmdIdle(ctx context.Context, c conn, args []string) error {
	return userCall(ctx, c, "idle", args, func(ctx context.Context, cli *api.Client, req *api.UserRequest) error {
		_, err := cli.MakeModeratorIdle(ctx, req)
		return err
	})
}

func cmdReactivate(ctx context.Context, c conn, args []string) error {
	return userCall(ctx, c, "reactivate", args, func(ctx context.Context, cli *api.Client, req *api.UserRequest) error {
		_, err := cli.ReactivateModerator(ctx, req)
		return err
	})
}

func cmdRound(ctx context.Context, c conn, args []string) error {
	if len(args) != 1 {
		return errors.New("round: expected start, end or active")
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	var resp *api.RoundResponse
	switch args[0] {
	case "start":
		resp, err = cli.StartRound(ctx, &api.Empty{})
	case "end":
		resp, err = cli.EndRound(ctx, &api.Empty{})
	case "active":
		resp, err = cli.ActiveRound(ctx, &api.Empty{})
	default:
		return fmt.Errorf("round: unknown action %q", args[0])
	}
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func cmdAudit(ctx context.Context, c conn, args []string) error {
	fs := newFlags("audit")
	action := fs.String("action", "", "action type, e.g. MESSAGE_SENT")
	round := fs.Int64("round", 0, "round number")
	limit := fs.Int("limit", 0, "max entries (server default when 0)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cli, _, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cli.ListAudit(ctx, &api.ListAuditRequest{ActionType: *action, Round: *round, Limit: *limit})
	if err != nil {
		return err
	}
	printJSON(resp.Entries)
	return nil
}
