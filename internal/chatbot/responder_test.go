package chatbot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/linking/code"
	"linkgate/internal/linking/pending"
	"linkgate/internal/linking/service"
	"linkgate/internal/linking/store"
)

func newService(t *testing.T) *service.LinkingService {
	t.Helper()
	gen, err := code.NewGenerator(code.DefaultLength)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return service.NewLinkingService(service.Deps{
		Links:     store.New(),
		Codes:     pending.New(gen, pending.Config{TTL: 10 * time.Minute}),
		Validator: gen,
		Log:       zerolog.Nop(),
	})
}

func TestResponder_Link_Success(t *testing.T) {
	svc := newService(t)
	r := NewResponder(svc, Options{Prefix: "/"}, zerolog.Nop())
	ctx := context.Background()
	p, _ := svc.IssueCode(ctx, "acct-1", "Steve")

	reply, handled := r.Handle(ctx, 42, "/link "+strings.ToLower(p.Code))
	if !handled {
		t.Fatal("link command should be handled")
	}
	if !strings.Contains(reply, "Linked") || !strings.Contains(reply, "Steve") {
		t.Errorf("reply = %q", reply)
	}
	if acct, ok := svc.AccountID(42); !ok || acct != "acct-1" {
		t.Errorf("AccountID(42) = (%q, %v)", acct, ok)
	}
}

func TestResponder_Link_AlreadyLinked(t *testing.T) {
	svc := newService(t)
	r := NewResponder(svc, Options{Prefix: "/"}, zerolog.Nop())
	ctx := context.Background()
	p, _ := svc.IssueCode(ctx, "acct-1", "Steve")
	r.Handle(ctx, 42, "/link "+p.Code)

	p2, _ := svc.IssueCode(ctx, "acct-2", "Alex")
	reply, _ := r.Handle(ctx, 42, "/link "+p2.Code)
	if !strings.Contains(reply, "already linked") {
		t.Errorf("reply = %q, want already-linked notice", reply)
	}
	if svc.IsLinked("acct-2") {
		t.Error("already-linked sender must not link a second account")
	}
}

func TestResponder_Link_InvalidInputs(t *testing.T) {
	svc := newService(t)
	r := NewResponder(svc, Options{Prefix: "/"}, zerolog.Nop())
	ctx := context.Background()

	cases := map[string]string{
		"/link":             "Wrong format",
		"/link A B":         "Wrong format",
		"/link abc":         "does not look like",
		"/link ZZZZ9999":    "Invalid or expired",
		"/link@gatebot abc": "does not look like",
	}
	for msg, want := range cases {
		reply, handled := r.Handle(ctx, 42, msg)
		if !handled || !strings.Contains(reply, want) {
			t.Errorf("Handle(%q) = (%q, %v), want reply containing %q", msg, reply, handled, want)
		}
	}
}

func TestResponder_StatusAndStart(t *testing.T) {
	svc := newService(t)
	r := NewResponder(svc, Options{Prefix: "!"}, zerolog.Nop())
	ctx := context.Background()

	if reply, _ := r.Handle(ctx, 42, "!status"); !strings.Contains(reply, "not linked") {
		t.Errorf("status reply = %q", reply)
	}
	if reply, _ := r.Handle(ctx, 42, "!start"); !strings.Contains(reply, "not linked yet") {
		t.Errorf("start reply = %q", reply)
	}

	p, _ := svc.IssueCode(ctx, "acct-1", "Steve")
	r.Handle(ctx, 42, "!link "+p.Code)

	if reply, _ := r.Handle(ctx, 42, "!status"); !strings.Contains(reply, "active") || !strings.Contains(reply, "acct-1") {
		t.Errorf("status reply = %q", reply)
	}
	if reply, _ := r.Handle(ctx, 42, "!START"); !strings.Contains(reply, "Welcome back") {
		t.Errorf("start reply = %q", reply)
	}
}

func TestResponder_HelpMentionsTTL(t *testing.T) {
	r := NewResponder(newService(t), Options{Prefix: "/"}, zerolog.Nop())
	reply, _ := r.Handle(context.Background(), 1, "/help")
	if !strings.Contains(reply, "10 minutes") {
		t.Errorf("help reply = %q", reply)
	}
}

func TestResponder_PlainTextAndUnknown(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	quiet := NewResponder(svc, Options{Prefix: "!"}, zerolog.Nop())
	if _, handled := quiet.Handle(ctx, 1, "hello there"); handled {
		t.Error("plain text should be ignored without ReplyToPlainText")
	}

	chatty := NewResponder(svc, Options{Prefix: "/", ReplyToPlainText: true}, zerolog.Nop())
	if reply, handled := chatty.Handle(ctx, 1, "hello there"); !handled || !strings.Contains(reply, "Unknown command") {
		t.Errorf("plain text = (%q, %v)", reply, handled)
	}
	if reply, _ := chatty.Handle(ctx, 1, "/dance"); !strings.Contains(reply, "Unknown command") {
		t.Errorf("unknown = %q", reply)
	}
}
