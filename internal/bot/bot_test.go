package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shortgrab/backend/internal/videos"
)

const testUserID = 42

func newTestBot(t *testing.T, acquirer *stubAcquirer, mutate func(*Dependencies, *Config)) (*Bot, *fakeSender, *memoryLedger) {
	t.Helper()

	sender := &fakeSender{}
	users := newMemoryLedger()
	if acquirer == nil {
		acquirer = &stubAcquirer{result: func(videos.Request) videos.Result {
			return videos.Failed{Reason: videos.KindUnknown}
		}}
	}

	deps := Dependencies{
		API:    sender,
		Users:  users,
		Videos: acquirer,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cfg := Config{
		BotName:        "ShortGrab",
		BotUsername:    "testbot",
		AdminIDs:       []int64{1},
		MaxUploadBytes: 1024,
		Workers:        2,
	}
	if mutate != nil {
		mutate(&deps, &cfg)
	}

	b, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b.now = func() time.Time { return time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC) }
	return b, sender, users
}

func textMessage(from int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from, FirstName: "Ann", UserName: "ann", LanguageCode: "en"},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

func writeVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte(strings.Repeat("v", size)), 0o600); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func lastText(t *testing.T, sender *fakeSender) string {
	t.Helper()
	texts := sender.texts()
	if len(texts) == 0 {
		t.Fatal("expected at least one message")
	}
	return texts[len(texts)-1]
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Dependencies{}, Config{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}

func TestStartRegistersUserAndShowsMenu(t *testing.T) {
	b, sender, users := newTestBot(t, nil, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "/start ref_7"))

	account, ok := users.account(testUserID)
	if !ok {
		t.Fatal("expected /start to register the user")
	}
	if account.FirstName != "Ann" || account.Username != "ann" {
		t.Fatalf("unexpected profile: %+v", account)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	welcome, ok := sender.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", sender.sent[0])
	}
	if !strings.Contains(welcome.Text, "Ann") {
		t.Fatalf("expected greeting by name, got %q", welcome.Text)
	}
	if _, ok := welcome.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); !ok {
		t.Fatalf("expected inline menu, got %T", welcome.ReplyMarkup)
	}
}

func TestParseReferral(t *testing.T) {
	if id, ok := parseReferral("ref_123"); !ok || id != 123 {
		t.Fatalf("parseReferral(ref_123) = %d, %v", id, ok)
	}
	for _, payload := range []string{"", "ref_", "ref_abc", "promo_1", "ref_-5"} {
		if _, ok := parseReferral(payload); ok {
			t.Fatalf("expected %q to be rejected", payload)
		}
	}
}

func TestStaticCommands(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)

	cases := map[string]string{
		"/help":     helpText,
		"/examples": examplesText,
		"/privacy":  privacyText,
		"/nope":     textUnknownCmd,
	}
	for command, want := range cases {
		b.HandleUpdate(context.Background(), textMessage(testUserID, command))
		if got := lastText(t, sender); got != want {
			t.Fatalf("%s replied %q", command, got)
		}
	}
}

func TestStatsForUnknownUser(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "/stats"))

	if got := lastText(t, sender); got != textStatsNotFound {
		t.Fatalf("expected not-found text, got %q", got)
	}
}

func TestStatsShowsCounters(t *testing.T) {
	path := writeVideo(t, 10)
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Completed{FilePath: path, Title: "clip"}
	}}
	b, sender, _ := newTestBot(t, acquirer, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://www.tiktok.com/@user/video/123"))
	b.HandleUpdate(context.Background(), textMessage(testUserID, "/stats"))

	got := lastText(t, sender)
	for _, want := range []string{"Videos downloaded: 1", "Links sent: 1", "Average per day: 0.5", "With us since: 2024-05-01"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in stats text:\n%s", want, got)
		}
	}
}

func TestInteractionRefreshesRegisteredUser(t *testing.T) {
	b, _, users := newTestBot(t, nil, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "/start"))
	before, _ := users.account(testUserID)

	update := textMessage(testUserID, "/help")
	update.Message.From.UserName = "ann_new"
	b.HandleUpdate(context.Background(), update)

	after, _ := users.account(testUserID)
	if !after.LastActivity.After(*before.LastActivity) {
		t.Fatalf("expected last activity to move forward: %v -> %v", before.LastActivity, after.LastActivity)
	}
	if after.Username != "ann_new" {
		t.Fatalf("expected username refresh, got %q", after.Username)
	}
	if count, _ := users.CountUsers(context.Background()); count != 1 {
		t.Fatalf("expected a single user, got %d", count)
	}
}

func TestPlainTextGetsPrompt(t *testing.T) {
	b, sender, users := newTestBot(t, nil, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "hello there"))

	if got := lastText(t, sender); got != textNotALink {
		t.Fatalf("expected prompt, got %q", got)
	}
	if _, ok := users.account(testUserID); ok {
		t.Fatal("plain text must not register the user")
	}
}

func TestLinkDeliversVideo(t *testing.T) {
	path := writeVideo(t, 100)
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Completed{FilePath: path, Title: "Funny cat", DurationSeconds: 12}
	}}
	b, sender, users := newTestBot(t, acquirer, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "look https://youtube.com/shorts/abc123"))

	if len(acquirer.requests) != 1 || acquirer.requests[0].URL != "https://youtube.com/shorts/abc123" {
		t.Fatalf("unexpected acquisition requests: %+v", acquirer.requests)
	}

	sent := sender.videos()
	if len(sent) != 1 {
		t.Fatalf("expected one video upload, got %d", len(sent))
	}
	if sent[0].Caption != "Funny cat" || sent[0].ChatID != testUserID {
		t.Fatalf("unexpected video config: caption=%q chat=%d", sent[0].Caption, sent[0].ChatID)
	}

	if texts := sender.texts(); len(texts) != 1 || texts[0] != textDownloading {
		t.Fatalf("expected only the status message, got %q", texts)
	}
	if len(sender.requests) != 1 {
		t.Fatalf("expected the status message to be deleted, got %d requests", len(sender.requests))
	}
	if del, ok := sender.requests[0].(tgbotapi.DeleteMessageConfig); !ok || del.MessageID != 1 {
		t.Fatalf("unexpected delete request: %#v", sender.requests[0])
	}

	account, _ := users.account(testUserID)
	if account.TotalRequests != 1 || account.TotalVideosDownloaded != 1 {
		t.Fatalf("unexpected counters: %+v", account)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected downloaded file to be removed, stat err = %v", err)
	}
}

func TestDeliveredVideoHandedToArchive(t *testing.T) {
	path := writeVideo(t, 100)
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Completed{FilePath: path, Title: "clip"}
	}}
	archiver := &recordingArchiver{}
	b, _, _ := newTestBot(t, acquirer, func(d *Dependencies, _ *Config) {
		d.Archive = archiver
	})

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://www.tiktok.com/@u/video/1"))

	if len(archiver.paths) != 1 || archiver.paths[0] != path {
		t.Fatalf("expected delivered file to be queued, got %v", archiver.paths)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archive owns the file, it must not be removed yet: %v", err)
	}
}

func TestArchiveRefusalRemovesFile(t *testing.T) {
	path := writeVideo(t, 100)
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Completed{FilePath: path, Title: "clip"}
	}}
	b, _, _ := newTestBot(t, acquirer, func(d *Dependencies, _ *Config) {
		d.Archive = &recordingArchiver{err: errors.New("archive queue full")}
	})

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://www.tiktok.com/@u/video/1"))

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file to be removed when the archive refuses it, stat err = %v", err)
	}
}

func TestLinkFailureEditsStatus(t *testing.T) {
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Failed{Reason: videos.KindPrivateOrUnavailable, Detail: "private video"}
	}}
	b, sender, users := newTestBot(t, acquirer, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://www.instagram.com/reel/Cxyz/"))

	var edit tgbotapi.EditMessageTextConfig
	var found bool
	for _, c := range sender.sent {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			edit, found = e, true
		}
	}
	if !found {
		t.Fatal("expected the status message to be edited")
	}
	if edit.MessageID != 1 || edit.Text != failureText(videos.KindPrivateOrUnavailable, 300) {
		t.Fatalf("unexpected edit: id=%d text=%q", edit.MessageID, edit.Text)
	}

	account, _ := users.account(testUserID)
	if account.TotalRequests != 1 || account.TotalVideosDownloaded != 0 {
		t.Fatalf("unexpected counters: %+v", account)
	}
}

func TestDurationFailureMentionsLimit(t *testing.T) {
	got := failureText(videos.KindDurationExceeded, 300)
	if !strings.Contains(got, "5 minutes") {
		t.Fatalf("expected limit in text, got %q", got)
	}
	if got := humanDuration(90); got != "90 seconds" {
		t.Fatalf("humanDuration(90) = %q", got)
	}
}

func TestOversizedVideoIsNotUploaded(t *testing.T) {
	path := writeVideo(t, 2048)
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Completed{FilePath: path, Title: "big"}
	}}
	b, sender, users := newTestBot(t, acquirer, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://vm.tiktok.com/ZMabc/"))

	if len(sender.videos()) != 0 {
		t.Fatal("expected no upload for oversized file")
	}
	if got := lastText(t, sender); got != deliveryFailureText(deliveryTooLarge, 1024) {
		t.Fatalf("unexpected text %q", got)
	}
	account, _ := users.account(testUserID)
	if account.TotalVideosDownloaded != 0 {
		t.Fatalf("oversized video must not count as downloaded: %+v", account)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected oversized file to be removed")
	}
}

func TestUploadErrorIsClassified(t *testing.T) {
	path := writeVideo(t, 10)
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		return videos.Completed{FilePath: path, Title: "clip"}
	}}
	b, sender, users := newTestBot(t, acquirer, nil)
	sender.sendErr = func(c tgbotapi.Chattable, _ int) error {
		if _, ok := c.(tgbotapi.VideoConfig); ok {
			return &tgbotapi.Error{Code: 413, Message: "Request Entity Too Large"}
		}
		return nil
	}

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://youtu.be/abc"))

	if got := lastText(t, sender); got != deliveryFailureText(deliveryTooLarge, 1024) {
		t.Fatalf("unexpected text %q", got)
	}
	account, _ := users.account(testUserID)
	if account.TotalVideosDownloaded != 0 {
		t.Fatalf("failed upload must not count as downloaded: %+v", account)
	}
}

func TestThrottledLinkSkipsPipeline(t *testing.T) {
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		t.Fatal("pipeline must not run for throttled users")
		return nil
	}}
	b, sender, _ := newTestBot(t, acquirer, func(d *Dependencies, _ *Config) {
		d.Limiter = denyLimiter{}
	})

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://www.tiktok.com/@u/video/1"))

	if got := lastText(t, sender); got != textSlowDown {
		t.Fatalf("expected slow down text, got %q", got)
	}
}

func TestAdminRequiresPermission(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "/admin hello"))

	if got := lastText(t, sender); got != textNotAdmin {
		t.Fatalf("expected permission error, got %q", got)
	}
}

func TestAdminWithoutTextShowsUsage(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)
	b.HandleUpdate(context.Background(), textMessage(1, "/start"))
	b.HandleUpdate(context.Background(), textMessage(2, "/start"))

	b.HandleUpdate(context.Background(), textMessage(1, "/admin"))

	if got := lastText(t, sender); got != adminUsageText(2) {
		t.Fatalf("unexpected usage text %q", got)
	}
}

func TestAdminBroadcastReportsResult(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)
	for _, id := range []int64{1, 2, 3} {
		b.HandleUpdate(context.Background(), textMessage(id, "/start"))
	}
	before := len(sender.sent)

	b.HandleUpdate(context.Background(), textMessage(1, "/admin New feature!"))

	var broadcast int
	for _, c := range sender.sent[before:] {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.Text == "New feature!" {
			broadcast++
		}
	}
	if broadcast != 3 {
		t.Fatalf("expected 3 broadcast messages, got %d", broadcast)
	}
	if got := lastText(t, sender); got != broadcastReportText(Report{Attempted: 3, Sent: 3}) {
		t.Fatalf("unexpected report %q", got)
	}
}

func TestInviteCallback(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)

	b.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 5,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: testUserID},
			Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: testUserID}},
			Data:    callbackInvite,
		},
	})

	if len(sender.requests) != 1 {
		t.Fatalf("expected callback to be answered, got %d requests", len(sender.requests))
	}
	if _, ok := sender.requests[0].(tgbotapi.CallbackConfig); !ok {
		t.Fatalf("expected CallbackConfig, got %T", sender.requests[0])
	}
	if got := lastText(t, sender); !strings.Contains(got, "https://t.me/testbot?start=ref_42") {
		t.Fatalf("expected invite link, got %q", got)
	}
}

func TestHandleUpdateRecoversFromPanic(t *testing.T) {
	acquirer := &stubAcquirer{result: func(videos.Request) videos.Result {
		panic("boom")
	}}
	b, _, _ := newTestBot(t, acquirer, nil)

	b.HandleUpdate(context.Background(), textMessage(testUserID, "https://www.tiktok.com/@u/video/1"))
}

func TestRunDrainsUpdates(t *testing.T) {
	b, sender, _ := newTestBot(t, nil, nil)

	updates := make(chan tgbotapi.Update, 3)
	for i := 0; i < 3; i++ {
		updates <- textMessage(int64(100+i), "/help")
	}
	close(updates)

	if err := b.Run(context.Background(), updates); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(sender.texts()); got != 3 {
		t.Fatalf("expected 3 replies, got %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b, _, _ := newTestBot(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, make(chan tgbotapi.Update)) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestCaptionTruncated(t *testing.T) {
	long := strings.Repeat("é", captionLimit+10)
	got := []rune(caption(long))
	if len(got) != captionLimit || got[len(got)-1] != '…' {
		t.Fatalf("unexpected caption length %d", len(got))
	}
}
