// Package discord is the chat frontend: it turns messages into submissions,
// queries into embeds, and routes terminal outcomes back to their authors.
// The benchmark core never talks to the chat protocol outside this package.
package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/bwmarrin/discordgo"
	"github.com/ferris-elf/ferris-elf"
	"github.com/ferris-elf/ferris-elf/bench"
	"github.com/ferris-elf/ferris-elf/db"
)

const embedColor = 0xE84611

var ErrNoToken = ferriself.Statusf(401, "No Discord token provided")

type Bot struct {
	session *discordgo.Session
	store   *db.DB
	handler *bench.Handler
	rerun   *bench.Coordinator

	adminIDs   []int64
	trustedIDs []int64
	inputs     ferriself.InputStore
	year       int

	// usernames caches resolved display names so leaderboard rendering does
	// not hammer the user endpoint.
	usernames *theine.Cache[string, string]

	http *http.Client
}

func NewBot(token string, store *db.DB, handler *bench.Handler, rerun *bench.Coordinator, inputs ferriself.InputStore, year int, adminIDs, trustedIDs []int64) (*Bot, error) {
	if len(token) < 2 {
		return nil, ErrNoToken
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, ferriself.WrapError(err, "Could not create discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMembers | discordgo.IntentMessageContent

	usernames, err := theine.NewBuilder[string, string](4096).Build()
	if err != nil {
		return nil, ferriself.WrapError(err, "Could not create username cache")
	}

	return &Bot{
		session:    session,
		store:      store,
		handler:    handler,
		rerun:      rerun,
		adminIDs:   adminIDs,
		trustedIDs: trustedIDs,
		inputs:     inputs,
		year:       year,
		usernames:  usernames,
		http:       &http.Client{Timeout: time.Minute},
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.onMessage(ctx, m)
	})
	if err := b.session.Open(); err != nil {
		return ferriself.WrapError(err, "Could not connect to discord")
	}
	slog.InfoContext(ctx, "Logged in", slog.String("user", b.session.State.User.String()))
	return nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	switch {
	case strings.HasPrefix(m.Content, "aoc"):
		b.leaderboardCmd(ctx, m)
		return
	case strings.HasPrefix(m.Content, "best"):
		b.bestCmd(ctx, m)
		return
	case strings.HasPrefix(m.Content, "migrate-hash"):
		b.migrateHashCmd(ctx, m)
		return
	case strings.HasPrefix(m.Content, "rerun"):
		b.rerunCmd(ctx, m)
		return
	}

	if m.GuildID != "" {
		return
	}
	b.handleDM(ctx, m)
}

func (b *Bot) handleDM(ctx context.Context, m *discordgo.MessageCreate) {
	switch {
	case m.Content == "help":
		b.replyEmbed(m, helpEmbed())
		return
	case m.Content == "info":
		b.replyEmbed(m, infoEmbed())
		return
	case strings.HasPrefix(m.Content, "inputs"):
		b.inputsCmd(ctx, m)
		return
	case strings.HasPrefix(m.Content, "solutions"):
		b.solutionsCmd(ctx, m)
		return
	}

	b.submit(ctx, m)
}

// submit turns a DM with an attachment into a queued submission.
func (b *Bot) submit(ctx context.Context, m *discordgo.MessageCreate) {
	if len(m.Attachments) == 0 {
		b.reply(m, "Please provide the code as a file attachment")
		return
	}

	parts := strings.Fields(m.Content)
	if len(parts) < 2 {
		b.reply(m, "Looks like you forgot to specify `<day> <part>`. Submit again, with a message like `4 2` if your code is for day 4 part 2.")
		return
	}
	day, err1 := strconv.Atoi(parts[0])
	part, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || day < 1 || day > 25 || part < 1 || part > 2 {
		b.reply(m, "ERR: Day must be in 1..=25 and part in 1..=2")
		return
	}

	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		b.reply(m, "ERR: Could not parse your user ID")
		return
	}

	code, err := b.download(ctx, m.Attachments[0].URL)
	if err != nil {
		slog.WarnContext(ctx, "Could not download attachment", slog.Any("err", err))
		b.reply(m, "ERR: Could not download your attachment")
		return
	}

	if b.handler.QueueLen() > 0 {
		b.reply(m, "Benchmark queued...")
	} else {
		b.reply(m, "Benchmark running...")
	}
	slog.InfoContext(ctx, "Queued submission", slog.String("user", m.Author.Username), slog.Int("queue", b.handler.QueueLen()))

	b.handler.Enqueue(&bench.Item{
		Sub: &ferriself.Submission{
			UserID: userID,
			Code:   code,
			Day:    day,
			Part:   part,
		},
		Notify: func(rep *ferriself.Report, err error) {
			b.deliver(ctx, m, rep, err)
		},
	})
}

func (b *Bot) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (b *Bot) isAdmin(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	return err == nil && slices.Contains(b.adminIDs, n)
}

func (b *Bot) isTrusted(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false
	}
	return slices.Contains(b.adminIDs, n) || slices.Contains(b.trustedIDs, n)
}

func (b *Bot) reply(m *discordgo.MessageCreate, content string) {
	if _, err := b.session.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
		slog.Warn("Could not send reply", slog.Any("err", err))
	}
}

func (b *Bot) replyEmbed(m *discordgo.MessageCreate, embed *discordgo.MessageEmbed) {
	if _, err := b.session.ChannelMessageSendEmbedReply(m.ChannelID, embed, m.Reference()); err != nil {
		slog.Warn("Could not send embed", slog.Any("err", err))
	}
}

func (b *Bot) replyFile(m *discordgo.MessageCreate, content, name string, data []byte) {
	_, err := b.session.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:   content,
		Reference: m.Reference(),
		Files:     []*discordgo.File{{Name: name, Reader: strings.NewReader(string(data))}},
	})
	if err != nil {
		slog.Warn("Could not send file reply", slog.Any("err", err))
	}
}

// displayName renders a user for an embed: a mention when the member is in
// the guild the command came from, otherwise the fetched username.
func (b *Bot) displayName(guildID string, userID int64) string {
	id := strconv.FormatInt(userID, 10)
	if guildID != "" {
		if _, err := b.session.State.Member(guildID, id); err == nil {
			return "<@" + id + ">"
		}
	}
	if name, ok := b.usernames.Get(id); ok {
		return name
	}
	user, err := b.session.User(id)
	if err != nil {
		return "<@" + id + ">"
	}
	b.usernames.SetWithTTL(id, user.Username, 1, time.Hour)
	return user.Username
}
