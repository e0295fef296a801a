package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"walter-bot/internal/ai"
	"walter-bot/internal/config"
	"walter-bot/internal/format"
	"walter-bot/internal/history"
	"walter-bot/internal/metrics"
	"walter-bot/internal/schedule"
	"walter-bot/internal/source"
)

// Bot owns the Discord session, the manual check commands and the daily post.
type Bot struct {
	session *discordgo.Session
	cfg     config.DiscordConfig
	sched   config.ScheduleConfig
	loc     *time.Location
	log     *slog.Logger

	water       source.StopSource
	electricity source.StopSource
	waterFmt    *format.Formatter
	elecFmt     *format.Formatter
	history     *history.Client
	ai          *ai.Service // nil when OPENAI_API_KEY is absent
}

type Deps struct {
	Water       source.StopSource
	Electricity source.StopSource
	WaterFmt    *format.Formatter
	ElecFmt     *format.Formatter
	History     *history.Client
	AI          *ai.Service
}

func New(cfg config.DiscordConfig, sched config.ScheduleConfig, loc *time.Location, deps Deps, log *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		session:     session,
		cfg:         cfg,
		sched:       sched,
		loc:         loc,
		log:         log.With("component", "bot"),
		water:       deps.Water,
		electricity: deps.Electricity,
		waterFmt:    deps.WaterFmt,
		elecFmt:     deps.ElecFmt,
		history:     deps.History,
		ai:          deps.AI,
	}
	session.AddHandler(b.messageHandler)
	return b, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	b.log.Info("discord session connected", "guilds", len(b.session.State.Guilds))
	return nil
}

func (b *Bot) Stop() error { return b.session.Close() }

func (b *Bot) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if !strings.HasPrefix(m.Content, b.cfg.Prefix) {
		return
	}
	cmd := strings.TrimPrefix(strings.Fields(m.Content)[0], b.cfg.Prefix)

	ctx := context.Background()
	switch cmd {
	case "check_water":
		b.send(m.ChannelID, "💧 Checking for water stops... (this may take a moment)")
		b.postStops(ctx, m.ChannelID, b.water, b.waterFmt, "water")

	case "check_power":
		b.send(m.ChannelID, "Checking for electricity outages... (this may take a moment)")
		b.postStops(ctx, m.ChannelID, b.electricity, b.elecFmt, "electricity")

	case "test_daily":
		if !b.isAdmin(s, m) {
			b.send(m.ChannelID, "You don't have permission to use this command.")
			return
		}
		b.send(m.ChannelID, "Generating daily post...")
		b.RunDaily(ctx)
		b.send(m.ChannelID, "Daily post sent!")

	case "next_post":
		next := schedule.Next(time.Now(), b.sched.Hour, b.sched.Minute, b.loc)
		b.send(m.ChannelID, fmt.Sprintf("Next post scheduled for: %s", next.Format("2006-01-02 15:04:05 MST")))

	case "walter_status":
		b.sendStatus(m.ChannelID)
	}
}

func (b *Bot) isAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		b.log.Warn("permission lookup failed", "user", m.Author.ID, "error", err)
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (b *Bot) sendStatus(channelID string) {
	next := schedule.Next(time.Now(), b.sched.Hour, b.sched.Minute, b.loc)
	aiState := "Disabled"
	if b.ai != nil {
		aiState = "Enabled"
	}
	embed := &discordgo.MessageEmbed{
		Title: "Walter Bot Status",
		Color: 0x2ecc71,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: "🟢 Online", Inline: true},
			{Name: "Guilds", Value: fmt.Sprintf("%d", len(b.session.State.Guilds)), Inline: true},
			{Name: "Commentary", Value: aiState, Inline: true},
			{Name: "Water Stops", Value: "Enabled", Inline: true},
			{Name: "Electricity Stops", Value: "Enabled", Inline: true},
			{Name: "Next Post", Value: next.Format("2006-01-02 15:04 MST"), Inline: false},
		},
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.log.Error("send status embed", "error", err)
	}
}

// RunDaily posts the history commentary, then the water digest, then the
// electricity digest. Each part is isolated: a failing digest substitutes its
// apology message and the rest still goes out.
func (b *Bot) RunDaily(ctx context.Context) {
	b.log.Info("daily post starting")
	channel := b.cfg.ChannelID

	b.postHistory(ctx, channel)
	b.postStops(ctx, channel, b.water, b.waterFmt, "water")
	b.postStops(ctx, channel, b.electricity, b.elecFmt, "electricity")

	b.log.Info("daily post finished")
}

func (b *Bot) postHistory(ctx context.Context, channelID string) {
	now := time.Now().In(b.loc)
	events := b.history.EventsForDate(ctx, int(now.Month()), now.Day())
	selected := b.history.SelectBest(events, 10)

	var content string
	if b.ai != nil {
		content = b.ai.DailyCommentary(ctx, selected)
	} else {
		content = ai.Fallback(selected)
	}
	if b.send(channelID, content) {
		metrics.MessagesSent.WithLabelValues("history").Inc()
	}
}

// postStops fetches, formats and sends one source's digest. An empty fetch
// result gets the all-clear message; a send failure gets the apology.
func (b *Bot) postStops(ctx context.Context, channelID string, src source.StopSource, f *format.Formatter, kind string) {
	stops := src.GetStops(ctx)

	chunks := f.Format(stops)
	if len(chunks) == 0 {
		if b.send(channelID, f.NoStopsMessage()) {
			metrics.MessagesSent.WithLabelValues(kind).Inc()
		}
		return
	}

	for _, chunk := range chunks {
		if !b.send(channelID, chunk) {
			b.send(channelID, f.ApologyMessage())
			return
		}
		metrics.MessagesSent.WithLabelValues(kind).Inc()
	}
	b.log.Info("digest sent", "kind", kind, "stops", len(stops), "chunks", len(chunks))
}

func (b *Bot) send(channelID, content string) bool {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.log.Error("send message failed", "channel", channelID, "error", err)
		return false
	}
	return true
}
