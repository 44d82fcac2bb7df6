package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/ferris-elf/ferris-elf"
	"github.com/ferris-elf/ferris-elf/bench"
)

// Embed field values are capped by discord; stop building once past this.
const fieldLimit = 800

// parseDayArg reads an optional day argument after the command word,
// defaulting to today. The bool is false when the message was likely not
// meant for the bot at all.
func parseDayArg(content string) (int, bool, error) {
	parts := strings.Fields(content)
	if len(parts) < 2 {
		return ferriself.Today(), true, nil
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		if len(parts) > 2 {
			// more words passed, it probably wasn't for us
			return 0, false, nil
		}
		if parts[1] == "help" {
			return 0, true, errors.New("(For helptext, Direct Message me `help`)")
		}
		return 0, true, errors.New("ERR: Passed invalid integer for day")
	}
	if day < 1 || day > 25 {
		return 0, true, errors.New("ERR: Day not in range (1..=25)")
	}
	return day, true, nil
}

func (b *Bot) leaderboardCmd(ctx context.Context, m *discordgo.MessageCreate) {
	started := time.Now()

	day, forUs, err := parseDayArg(m.Content)
	if !forUs {
		return
	}
	if err != nil {
		b.reply(m, err.Error())
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Top 10 fastest toboggans for day %d", day),
		Color: embedColor,
	}
	for part := 1; part <= 2; part++ {
		scores, err := b.formattedScores(ctx, m.GuildID, day, part)
		if err != nil {
			slog.WarnContext(ctx, "Could not build leaderboard", slog.Any("err", err))
			continue
		}
		if scores != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: fmt.Sprintf("Part %d", part), Value: scores, Inline: true,
			})
		}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Computed in " + ferriself.FormatNanos(float64(time.Since(started).Nanoseconds())),
	}
	b.replyEmbed(m, embed)
}

func (b *Bot) formattedScores(ctx context.Context, guildID string, day, part int) (string, error) {
	entries, err := b.store.Leaderboard(ctx, day, part)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "\t%s: **%s**\n", b.displayName(guildID, e.UserID), ferriself.FormatNanos(e.Time))
		if sb.Len() > fieldLimit {
			break
		}
	}
	return sb.String(), nil
}

func (b *Bot) bestCmd(ctx context.Context, m *discordgo.MessageCreate) {
	started := time.Now()

	parts := strings.Fields(m.Content)
	if len(parts) > 2 {
		return
	}
	if len(parts) == 2 && parts[1] == "help" {
		b.reply(m, "(For helptext, Direct Message me `help`)")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Top fastest toboggans for all days",
		Color: embedColor,
	}
	for part := 1; part <= 2; part++ {
		bests, err := b.store.BestPerDay(ctx, part)
		if err != nil {
			slog.WarnContext(ctx, "Could not build best leaderboard", slog.Any("err", err))
			continue
		}
		var sb strings.Builder
		for _, best := range bests {
			fmt.Fprintf(&sb, "\td%d: %s - **%s**\n", best.Day, b.displayName(m.GuildID, best.UserID), ferriself.FormatNanos(best.Time))
			if sb.Len() > fieldLimit {
				break
			}
		}
		if sb.Len() > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: fmt.Sprintf("Part %d", part), Value: sb.String(), Inline: true,
			})
		}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Computed in " + ferriself.FormatNanos(float64(time.Since(started).Nanoseconds())),
	}
	b.replyEmbed(m, embed)
}

// solutionsCmd shows the distribution of submitted answers for a day, for
// auditing consensus before curating a reference solution.
func (b *Bot) solutionsCmd(ctx context.Context, m *discordgo.MessageCreate) {
	if !b.isTrusted(m.Author.ID) {
		b.reply(m, "(For helptext, Direct Message me `help`)")
		return
	}
	started := time.Now()

	day, forUs, err := parseDayArg(m.Content)
	if !forUs {
		return
	}
	if err != nil {
		b.reply(m, err.Error())
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Submitted answers for day %d", day),
		Color: embedColor,
	}
	for part := 1; part <= 2; part++ {
		counts, err := b.store.AnswerDistribution(ctx, day, part)
		if err != nil {
			slog.WarnContext(ctx, "Could not query answer distribution", slog.Any("err", err))
			continue
		}
		var sb strings.Builder
		for _, c := range counts {
			fmt.Fprintf(&sb, "\t%s: **%d**\n", c.Answer, c.Count)
			if sb.Len() > fieldLimit {
				break
			}
		}
		if sb.Len() > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: fmt.Sprintf("Part %d", part), Value: sb.String(), Inline: true,
			})
		}
	}
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Computed in " + ferriself.FormatNanos(float64(time.Since(started).Nanoseconds())),
	}
	b.replyEmbed(m, embed)
}

func (b *Bot) inputsCmd(ctx context.Context, m *discordgo.MessageCreate) {
	if !b.isTrusted(m.Author.ID) {
		b.reply(m, "(For helptext, Direct Message me `help`)")
		return
	}

	day, forUs, err := parseDayArg(m.Content)
	if !forUs {
		return
	}
	if err != nil {
		b.reply(m, err.Error())
		return
	}

	names, err := b.inputs.Fixtures(ctx, b.year, day)
	if err != nil {
		b.reply(m, fmt.Sprintf("Failed to read input files for day %d", day))
		return
	}
	for _, name := range names {
		data, err := b.inputs.Fixture(ctx, b.year, day, name)
		if err != nil {
			b.reply(m, fmt.Sprintf("Failed to read input %s", name))
			continue
		}
		b.replyFile(m, fmt.Sprintf("Input %s (%s)", name, humanize.Bytes(uint64(len(data)))), name, []byte(data))
	}
}

func (b *Bot) rerunCmd(ctx context.Context, m *discordgo.MessageCreate) {
	if !b.isAdmin(m.Author.ID) {
		b.reply(m, "(For helptext, Direct Message me `help`)")
		return
	}
	requester, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return
	}

	// The coordinator blocks on each queued rerun, so keep it off the
	// gateway handler goroutine.
	go func() {
		done, err := b.rerun.Run(ctx, requester, func(progress string) {
			b.reply(m, progress)
		})
		if err != nil {
			slog.WarnContext(ctx, "Rerun coordinator stopped", slog.Any("err", err))
			return
		}
		slog.InfoContext(ctx, "Rerun pass complete", slog.Int("reprocessed", done))
	}()
}

// migrateHashCmd backfills content hashes for ledger rows predating the
// code_hash column.
func (b *Bot) migrateHashCmd(ctx context.Context, m *discordgo.MessageCreate) {
	if !b.isAdmin(m.Author.ID) {
		b.reply(m, "(For helptext, Direct Message me `help`)")
		return
	}

	missing, err := b.store.RunsWithoutHash(ctx)
	if err != nil {
		b.reply(m, "ERR: Could not query runs without a hash")
		return
	}
	for id, code := range missing {
		hash := ferriself.ContentHash(code)
		slog.InfoContext(ctx, "Backfilling hash", slog.Int64("row", id), slog.String("hash", hash))
		if err := b.store.SetCodeHash(ctx, id, hash); err != nil {
			slog.WarnContext(ctx, "Could not set code hash", slog.Int64("row", id), slog.Any("err", err))
		}
	}
	b.reply(m, fmt.Sprintf("Backfilled %d rows", len(missing)))
}

// deliver routes a submission's terminal outcome back to its author.
func (b *Bot) deliver(ctx context.Context, m *discordgo.MessageCreate, rep *ferriself.Report, err error) {
	if err == nil {
		b.replyEmbed(m, resultEmbed(rep))
		return
	}

	text, attachment, data, known := failureReply(err)
	if !known {
		slog.WarnContext(ctx, "Submission failed with internal error", slog.Any("err", err))
	}
	if attachment != "" {
		b.replyFile(m, text, attachment, data)
		return
	}
	b.reply(m, text)
}

// failureReply renders a terminal failure for the submitter. The bool is
// false for internal errors, whose details stay in the logs.
func failureReply(err error) (text, attachment string, data []byte, known bool) {
	var (
		buildErr *ferriself.BuildError
		runErr   *ferriself.RunError
		malErr   *ferriself.MalformedOutputError
		waErr    *ferriself.WrongAnswerError
		fetchErr *ferriself.FetchError
	)
	switch {
	case errors.As(err, &buildErr):
		if len(buildErr.Log) < 1800 {
			return fmt.Sprintf("Error building benchmark: ```%s```", buildErr.Log), "", nil, true
		}
		return "Error building benchmark:", "build_log.txt", []byte(buildErr.Log), true
	case errors.As(err, &runErr):
		return "Error running benchmark:", "stderr.txt", runErr.Stderr, true
	case errors.As(err, &malErr):
		return "Error running benchmark: " + malErr.Error(), "", nil, true
	case errors.As(err, &waErr):
		return fmt.Sprintf("Error: Benchmark returned wrong answer for input %d", waErr.Fixture), "", nil, true
	case errors.As(err, &fetchErr):
		return fetchErr.Error(), "", nil, true
	default:
		return "Benchmark processing failed", "", nil, false
	}
}

func resultEmbed(rep *ferriself.Report) *discordgo.MessageEmbed {
	title := "Benchmark complete"
	if !rep.Verified {
		title = "Benchmark complete (Unverified)"
	}

	text := fmt.Sprintf("Median: **%s ±%s**\nThroughput: **%.2fMB/s**",
		ferriself.FormatNanos(rep.Median), ferriself.FormatNanos(rep.Stdev), rep.Throughput)

	color := 0x41E425
	if delta, significant := bench.Delta(rep); significant {
		direction := "-"
		if delta > 0 {
			direction = "+"
			color = 0xE43A25
		}
		text += fmt.Sprintf("\nChange: **%s%s %.2f%%**", direction, ferriself.FormatNanos(absFloat(delta)), bench.DeltaPercent(rep))
	} else if rep.PrevBest != nil && rep.Best > *rep.PrevBest {
		color = 0xE43A25
	}

	return &discordgo.MessageEmbed{Title: title, Description: text, Color: color}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func helpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Ferris Elf help page",
		Color: embedColor,
		Description: "**help** - Send this message\n" +
			"**info** - Some useful information about benchmarking\n" +
			"**aoc _[day]_** - Best times so far\n" +
			"**best** - Best times for all days and parts\n" +
			"**_[day]_ _[part]_ <attachment>** - Benchmark attached code\n\n" +
			"If [_day_] and/or [_part_] is omitted, they are assumed to be today and part 1",
	}
}

func infoEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Benchmark information",
		Color: embedColor,
		Description: "When sending code for a benchmark, make sure it looks like\n" +
			"```rs\npub fn run(input: &str) -> i64 {\n    0\n}\n```\n" +
			"Input can be either a &str or a &[u8], whichever you prefer. The return " +
			"should be the solution to the day and part. Output can be `impl std::fmt::Display`.\n\n" +
			"Note that the input includes a **trailing newline**.\n\n" +
			"Benchmarks run on dedicated hardware with exclusive use of the timing cores. " +
			"Your code is warmed up first and then benchmarked. Please do not memoize values " +
			"in global state, a call to `run` should always perform all of the work.\n\n" +
			"Be kind and do not abuse :)",
	}
}
