package videos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strings"
)

var (
	// ErrProviderUnavailable indicates the extractor is not configured.
	ErrProviderUnavailable = errors.New("video extractor unavailable")
	// ErrEmptyMetadata indicates the extractor answered without usable metadata.
	ErrEmptyMetadata = errors.New("extractor returned empty metadata")
	// ErrNoOutputFile indicates the download finished but no media file could be found.
	ErrNoOutputFile = errors.New("download produced no file")
	// ErrBinaryNotFound indicates the yt-dlp executable could not be located.
	ErrBinaryNotFound = errors.New("yt-dlp binary not found")
)

// ErrorKind is the user-facing category of an acquisition failure.
type ErrorKind string

const (
	KindPrivateOrUnavailable ErrorKind = "private_or_unavailable"
	KindNetworkFailure       ErrorKind = "network_failure"
	KindAuthRequired         ErrorKind = "auth_required"
	KindAgeRestricted        ErrorKind = "age_restricted"
	KindDurationExceeded     ErrorKind = "duration_exceeded"
	KindUnknown              ErrorKind = "unknown"
)

// KindedError is implemented by errors that already carry their classification.
type KindedError interface {
	error
	Kind() ErrorKind
}

// ExtractorError wraps a failed yt-dlp invocation together with its stderr.
type ExtractorError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ExtractorError) Error() string {
	if msg := lastErrorLine(e.Stderr); msg != "" {
		return fmt.Sprintf("yt-dlp %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("yt-dlp %s: %v", e.Op, e.Err)
}

func (e *ExtractorError) Unwrap() error {
	return e.Err
}

// lastErrorLine picks the most specific line of yt-dlp stderr output.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// Rule maps errors satisfying Match to Kind.
type Rule struct {
	Kind  ErrorKind
	Match func(err error, message string) bool
}

// DefaultRules is evaluated in order; the first match wins. Structured checks
// come before the keyword heuristics, which only see the lower-cased message.
var DefaultRules = []Rule{
	{Kind: KindUnknown, Match: isLocalFailure},
	{Kind: KindNetworkFailure, Match: isNetworkError},
	{Kind: KindPrivateOrUnavailable, Match: containsAny("private", "unavailable")},
	{Kind: KindNetworkFailure, Match: containsAny("unable to download", "network")},
	{Kind: KindAuthRequired, Match: containsAny("sign in", "login")},
	{Kind: KindAgeRestricted, Match: matchesAny(regexp.MustCompile(`age-restricted|\bage\b`))},
}

// Classify maps an acquisition error to an ErrorKind using DefaultRules.
func Classify(err error) ErrorKind {
	return ClassifyWith(DefaultRules, err)
}

// ClassifyWith maps err using the supplied ordered rules.
func ClassifyWith(rules []Rule, err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}

	message := strings.ToLower(err.Error())
	for _, rule := range rules {
		if rule.Match(err, message) {
			return rule.Kind
		}
	}
	return KindUnknown
}

func isLocalFailure(err error, _ string) bool {
	return errors.Is(err, ErrBinaryNotFound) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, context.Canceled)
}

func isNetworkError(err error, _ string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func containsAny(keywords ...string) func(error, string) bool {
	return func(_ error, message string) bool {
		for _, keyword := range keywords {
			if strings.Contains(message, keyword) {
				return true
			}
		}
		return false
	}
}

func matchesAny(patterns ...*regexp.Regexp) func(error, string) bool {
	return func(_ error, message string) bool {
		for _, re := range patterns {
			if re.MatchString(message) {
				return true
			}
		}
		return false
	}
}
