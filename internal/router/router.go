package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"interbot/internal/autoclaim"
	"interbot/internal/transport"
	"interbot/pkg/logx"
	"interbot/pkg/tgui"
)

// Router dispatches chat commands and menu callbacks to the auto-claim
// service. One handler goroutine per update, so a slow manual claim for one
// user never blocks commands from others.
type Router struct {
	log     logx.Logger
	svc     *autoclaim.Service
	adapter transport.Adapter
	tz      *time.Location
}

func New(log logx.Logger, svc *autoclaim.Service, adapter transport.Adapter, tz *time.Location) *Router {
	if tz == nil {
		tz = time.UTC
	}
	return &Router{log: log, svc: svc, adapter: adapter, tz: tz}
}

// Run consumes updates until the channel closes or ctx is cancelled.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			go r.dispatch(ctx, u)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, u transport.Update) {
	switch u.Kind {
	case transport.UpdateMessage:
		if u.Message != nil {
			r.handleMessage(ctx, u.Message)
		}
	case transport.UpdateCallback:
		if u.Callback != nil {
			r.handleCallback(ctx, u.Callback)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cmd, arg, _ := strings.Cut(text, " ")
	// Strip the bot-mention suffix Telegram adds in groups.
	cmd, _, _ = strings.Cut(cmd, "@")
	arg = strings.TrimSpace(arg)

	log := r.log.With(logx.Int64("user_id", m.FromID), logx.String("command", cmd))
	log.Debug("command received")

	switch cmd {
	case "/start", "/help", "/menu":
		r.sendMenu(ctx, m.ChatID)
	case "/settoken":
		r.cmdSetToken(ctx, m, arg)
	case "/profile":
		r.reply(ctx, m.ChatID, r.renderProfile(ctx, m.FromID))
	case "/tokens":
		r.reply(ctx, m.ChatID, r.renderBalances(ctx, m.FromID))
	case "/claimstatus":
		r.reply(ctx, m.ChatID, r.renderEligibility(ctx, m.FromID))
	case "/claim":
		r.reply(ctx, m.ChatID, r.runManualClaim(ctx, m.FromID))
	case "/history":
		r.reply(ctx, m.ChatID, r.renderHistory(ctx, m.FromID))
	case "/autoclaim_start":
		r.reply(ctx, m.ChatID, r.startAutoClaim(m.FromID))
	case "/autoclaim_stop":
		r.reply(ctx, m.ChatID, r.stopAutoClaim(ctx, m.FromID))
	case "/autoclaim_status":
		r.reply(ctx, m.ChatID, r.renderStatus(ctx, m.FromID))
	default:
		r.reply(ctx, m.ChatID, tgui.Esc("Unknown command. Use /help for the menu."))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	action, _ := tgui.SplitData(cb.Data)
	log := r.log.With(logx.Int64("user_id", cb.FromID), logx.String("action", action))
	log.Debug("callback received")

	var body tgui.H
	switch action {
	case "profile":
		body = r.renderProfile(ctx, cb.FromID)
	case "tokens":
		body = r.renderBalances(ctx, cb.FromID)
	case "claimstatus":
		body = r.renderEligibility(ctx, cb.FromID)
	case "claim":
		body = r.runManualClaim(ctx, cb.FromID)
	case "history":
		body = r.renderHistory(ctx, cb.FromID)
	case "ac_start":
		body = r.startAutoClaim(cb.FromID)
	case "ac_stop":
		body = r.stopAutoClaim(ctx, cb.FromID)
	case "ac_status":
		body = r.renderStatus(ctx, cb.FromID)
	default:
		if err := r.adapter.AnswerCallback(ctx, cb.ID, "Unknown action"); err != nil {
			log.Warn("callback answer failed", logx.Err(err))
		}
		return
	}

	if err := r.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
		log.Warn("callback answer failed", logx.Err(err))
	}
	r.reply(ctx, cb.ChatID, body)
}

func (r *Router) cmdSetToken(ctx context.Context, m *transport.Message, arg string) {
	profile, err := r.svc.SetCredential(ctx, m.FromID, arg)
	if err != nil {
		switch {
		case errors.Is(err, autoclaim.ErrEmptyCredential):
			r.reply(ctx, m.ChatID, tgui.Esc("Usage: /settoken <access token>"))
		case errors.Is(err, autoclaim.ErrMalformedCredential):
			r.reply(ctx, m.ChatID, tgui.Esc("That does not look like an access token. Paste the full token starting with \"ey\"."))
		default:
			r.reply(ctx, m.ChatID, tgui.Lines(
				tgui.B("Token rejected."),
				tgui.Esc(err.Error())))
		}
		return
	}
	r.reply(ctx, m.ChatID, tgui.Lines(
		tgui.Bf("Token verified. Welcome, %s.", profile.Username),
		tgui.Esc("For safety, delete the message containing your token.")))
}

func (r *Router) sendMenu(ctx context.Context, chatID int64) {
	kb := tgui.NewInline().
		Row(tgui.Btn("Profile", "profile"), tgui.Btn("Balances", "tokens")).
		Row(tgui.Btn("Claim status", "claimstatus"), tgui.Btn("Claim now", "claim")).
		Row(tgui.Btn("Start auto-claim", "ac_start"), tgui.Btn("Stop auto-claim", "ac_stop")).
		Row(tgui.Btn("Auto-claim status", "ac_status"), tgui.Btn("History", "history"))

	body := tgui.Lines(
		tgui.B("Interlink claim bot"),
		tgui.Esc("Set your access token with /settoken <token>, then start auto-claim."),
		"",
		tgui.Esc("Commands: /profile /tokens /claimstatus /claim /history"),
		tgui.Esc("/autoclaim_start /autoclaim_stop /autoclaim_status"))

	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, body.String(), &transport.SendOptions{
		ParseMode:   "HTML",
		ReplyMarkup: kb.Markup(),
	}); err != nil {
		r.log.Warn("menu send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, body tgui.H) {
	if body == "" {
		return
	}
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, body.String(), &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	}); err != nil {
		r.log.Warn("reply send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
