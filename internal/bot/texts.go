package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shortgrab/backend/internal/models"
	"github.com/shortgrab/backend/internal/videos"
)

const (
	textDownloading   = "⏳ Downloading..."
	textNotALink      = "🔗 Send me a link to an Instagram Reel, a TikTok video or a YouTube Short and I'll send the video back."
	textSlowDown      = "🐢 You're sending links too fast. Please wait a moment and try again."
	textNotAdmin      = "⛔ This command is only available to administrators."
	textStatsNotFound = "I don't have any statistics for you yet. Send /start or a video link first."
	textUnknownCmd    = "I don't know that command. Send /help to see what I can do."
	textStatsFailed   = "😕 I couldn't load your statistics right now. Please try again later."
)

const helpText = `❓ How to use me

1. Copy a link to a short video.
2. Paste it into this chat.
3. Wait a few seconds and get the video back.

Supported: Instagram Reels and posts, TikTok, YouTube Shorts.

Commands:
/start - main menu
/stats - your statistics
/examples - link examples
/privacy - what I store about you
/help - this message`

const examplesText = `💡 Links I understand

https://www.instagram.com/reel/Cxyz123/
https://www.tiktok.com/@user/video/7234567890123456789
https://vm.tiktok.com/ZMabc123/
https://www.youtube.com/shorts/dQw4w9WgXcQ
https://youtu.be/dQw4w9WgXcQ`

const privacyText = `🔐 Privacy

I store your Telegram id, username, name and language, plus how many links you sent and videos you received. Videos are deleted from my server right after they are delivered. Nothing is shared with third parties.`

func welcomeText(name, botName string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("👋 Hi, %s!\n\nI'm %s. Send me a link to an Instagram Reel, a TikTok video or a YouTube Short and I'll send the video straight back to you.", name, botName)
}

func statsText(stats models.UserStats, now time.Time) string {
	lastActivity := "never"
	if stats.LastActivity != nil {
		lastActivity = stats.LastActivity.UTC().Format("2006-01-02 15:04") + " UTC"
	}

	var b strings.Builder
	b.WriteString("📊 Your statistics\n\n")
	fmt.Fprintf(&b, "🎬 Videos downloaded: %d\n", stats.TotalVideosDownloaded)
	fmt.Fprintf(&b, "📨 Links sent: %d\n", stats.TotalRequests)
	fmt.Fprintf(&b, "📈 Average per day: %.1f\n", stats.AverageVideosPerDay(now))
	fmt.Fprintf(&b, "🕒 Last activity: %s\n", lastActivity)
	fmt.Fprintf(&b, "📅 With us since: %s (%d days)", stats.CreatedAt.UTC().Format("2006-01-02"), stats.DaysSinceRegistration(now))
	return b.String()
}

func failureText(reason videos.ErrorKind, maxSeconds int) string {
	switch reason {
	case videos.KindPrivateOrUnavailable:
		return "🚫 This video is private, deleted or unavailable in my region. Try another link."
	case videos.KindNetworkFailure:
		return "🌐 I couldn't reach the video host. Please try again in a minute."
	case videos.KindAuthRequired:
		return "🔒 This video requires signing in, so I can't fetch it."
	case videos.KindAgeRestricted:
		return "🔞 This video is age-restricted, so I can't fetch it."
	case videos.KindDurationExceeded:
		return fmt.Sprintf("⏱ This video is too long. I only download videos up to %s.", humanDuration(maxSeconds))
	default:
		return "😕 Something went wrong while downloading. Please try again later."
	}
}

func deliveryFailureText(kind deliveryFailure, maxBytes int64) string {
	switch kind {
	case deliveryTooLarge:
		return fmt.Sprintf("📦 The video is bigger than %d MB, the largest file I can upload. Try a shorter clip.", maxBytes/(1024*1024))
	case deliveryTimeout:
		return "⌛ Uploading the video took too long. Please try again."
	default:
		return "😕 I downloaded the video but couldn't send it. Please try again later."
	}
}

func humanDuration(seconds int) string {
	d := time.Duration(seconds) * time.Second
	switch {
	case d%time.Minute == 0 && d >= time.Minute:
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	case seconds == 1:
		return "1 second"
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}

func adminUsageText(users int) string {
	return fmt.Sprintf("📣 Usage: /admin <message>\n\nThe message is sent to all %d registered users.", users)
}

func broadcastReportText(report Report) string {
	return fmt.Sprintf("✅ Broadcast finished.\n\nRecipients: %d\nDelivered: %d\nFailed: %d", report.Attempted, report.Sent, report.Failed)
}

func inviteText(link string) string {
	return "🤝 Share this link with your friends:\n\n" + link
}

// captionLimit is the longest media caption Telegram accepts.
const captionLimit = 1024

func caption(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= captionLimit {
		return string(runes)
	}
	return string(runes[:captionLimit-1]) + "…"
}
