package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"linkgate/internal/config"
	"linkgate/internal/linking/code"
	"linkgate/internal/linking/pending"
	"linkgate/internal/linking/service"
	"linkgate/internal/linking/store"
)

func newTestGate(t *testing.T, cfg Config) (*Gate, *service.LinkingService) {
	t.Helper()
	gen, err := code.NewGenerator(code.DefaultLength)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	svc := service.NewLinkingService(service.Deps{
		Links:     store.New(),
		Codes:     pending.New(gen, pending.Config{TTL: 10 * time.Minute}),
		Validator: gen,
		Log:       zerolog.Nop(),
	})
	return New(svc, cfg, zerolog.Nop()), svc
}

func defaultConfig() Config {
	return Config{CheckOnJoin: true, KickMessage: config.DefaultKickMessage, BotUsername: "link_bot"}
}

func TestGate_OnJoin_UnlinkedDenied(t *testing.T) {
	g, svc := newTestGate(t, defaultConfig())
	d, err := g.OnJoin(context.Background(), "acct-1", "Steve")
	if err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	if d.Allowed {
		t.Fatal("unlinked account must be denied")
	}
	if len(d.Code) != code.DefaultLength {
		t.Errorf("Code = %q", d.Code)
	}
	if !strings.Contains(d.Message, "/link "+d.Code) || !strings.Contains(d.Message, "@link_bot") ||
		!strings.Contains(d.Message, "10 minutes") {
		t.Errorf("Message = %q", d.Message)
	}
	if svc.Stats().PendingCodes != 1 {
		t.Errorf("PendingCodes = %d, want 1", svc.Stats().PendingCodes)
	}
}

func TestGate_OnJoin_RejoinReplacesCode(t *testing.T) {
	g, svc := newTestGate(t, defaultConfig())
	ctx := context.Background()
	first, _ := g.OnJoin(ctx, "acct-1", "Steve")
	second, _ := g.OnJoin(ctx, "acct-1", "Steve")
	if svc.Stats().PendingCodes != 1 {
		t.Errorf("PendingCodes = %d, want 1", svc.Stats().PendingCodes)
	}
	if _, ok, _ := svc.VerifyCode(ctx, first.Code, 5); ok && first.Code != second.Code {
		t.Error("previous code should be invalidated")
	}
}

func TestGate_OnJoin_LinkedAllowed(t *testing.T) {
	g, svc := newTestGate(t, defaultConfig())
	ctx := context.Background()
	d, _ := g.OnJoin(ctx, "acct-1", "Steve")
	if _, ok, err := svc.VerifyCode(ctx, d.Code, 42); err != nil || !ok {
		t.Fatalf("VerifyCode = %v, %v", ok, err)
	}
	d, err := g.OnJoin(ctx, "acct-1", "Steve")
	if err != nil {
		t.Fatalf("OnJoin: %v", err)
	}
	if !d.Allowed || d.ExternalID != 42 || d.Code != "" {
		t.Errorf("Decision = %+v", d)
	}
}

func TestGate_OnJoin_CheckDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.CheckOnJoin = false
	g, svc := newTestGate(t, cfg)
	d, err := g.OnJoin(context.Background(), "acct-1", "Steve")
	if err != nil || !d.Allowed {
		t.Fatalf("OnJoin = %+v, %v; want allowed", d, err)
	}
	if svc.Stats().PendingCodes != 0 {
		t.Error("no code should be issued when checks are disabled")
	}
}

func TestGate_PlayerCode_AlreadyLinked(t *testing.T) {
	g, svc := newTestGate(t, defaultConfig())
	ctx := context.Background()
	p, err := g.PlayerCode(ctx, "acct-1", "Steve")
	if err != nil {
		t.Fatalf("PlayerCode: %v", err)
	}
	if _, ok, _ := svc.VerifyCode(ctx, p.Code, 42); !ok {
		t.Fatal("verify failed")
	}
	if _, err := g.PlayerCode(ctx, "acct-1", "Steve"); !errors.Is(err, ErrAlreadyLinked) {
		t.Errorf("err = %v, want ErrAlreadyLinked", err)
	}
}

func TestGate_StatusAndUnlink(t *testing.T) {
	g, svc := newTestGate(t, defaultConfig())
	ctx := context.Background()
	if g.PlayerStatus("acct-1").Linked {
		t.Fatal("should not be linked")
	}
	p, _ := g.PlayerCode(ctx, "acct-1", "Steve")
	_, _, _ = svc.VerifyCode(ctx, p.Code, 42)

	st := g.AdminCheck("acct-1")
	if !st.Linked || st.ExternalID != 42 || st.DisplayName != "Steve" {
		t.Errorf("AdminCheck = %+v", st)
	}
	if !g.PlayerUnlink(ctx, "acct-1") {
		t.Fatal("PlayerUnlink = false")
	}
	if g.PlayerUnlink(ctx, "acct-1") {
		t.Error("second PlayerUnlink = true")
	}
	if g.AdminUnlink(ctx, "acct-1") {
		t.Error("AdminUnlink on unlinked = true")
	}
	if g.AdminStats().TotalLinks != 0 {
		t.Error("TotalLinks != 0")
	}
}

func TestGate_AdminCleanup(t *testing.T) {
	g, _ := newTestGate(t, defaultConfig())
	ctx := context.Background()
	_, _ = g.OnJoin(ctx, "acct-1", "a")
	_, _ = g.OnJoin(ctx, "acct-2", "b")
	removed, remaining := g.AdminCleanup(ctx)
	if removed != 0 || remaining != 2 {
		t.Errorf("AdminCleanup = %d, %d; want 0, 2", removed, remaining)
	}
}

func TestGate_RenderKick_CustomTemplate(t *testing.T) {
	g, _ := newTestGate(t, Config{KickMessage: "code=%code% bot=%bot_username% ttl=%minutes%", BotUsername: "b"})
	if got := g.RenderKick("ABCD1234"); got != "code=ABCD1234 bot=b ttl=10" {
		t.Errorf("RenderKick = %q", got)
	}
}
