package videos

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform names the hosting service behind a supported link.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformUnknown   Platform = "unknown"
)

type urlPattern struct {
	platform Platform
	re       *regexp.Regexp
}

// Host literals are matched case-sensitively and anchored at the scheme.
var supportedPatterns = []urlPattern{
	{PlatformInstagram, regexp.MustCompile(`^https?://(www\.)?instagram\.com/.+`)},
	{PlatformTikTok, regexp.MustCompile(`^https?://(www\.)?(vm\.)?tiktok\.com/.+`)},
	{PlatformYouTube, regexp.MustCompile(`^https?://(www\.)?(m\.)?youtube\.com/shorts/.+`)},
	{PlatformYouTube, regexp.MustCompile(`^https?://youtu\.be/.+`)},
}

// IsVideoURL reports whether text is a link to a supported short video.
func IsVideoURL(text string) bool {
	return DetectPlatform(text) != PlatformUnknown
}

// DetectPlatform returns the platform of the first matching pattern.
func DetectPlatform(text string) Platform {
	for _, p := range supportedPatterns {
		if p.re.MatchString(text) {
			return p.platform
		}
	}
	return PlatformUnknown
}

// isYouTubeWithoutShortsPath reports YouTube links that are not under /shorts/.
// Such links are still subject to the same duration limit.
func isYouTubeWithoutShortsPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "youtube.com" && host != "m.youtube.com" && host != "youtu.be" {
		return false
	}
	for _, segment := range strings.Split(u.Path, "/") {
		if segment == "shorts" {
			return false
		}
	}
	return true
}
