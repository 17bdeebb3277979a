package videos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shortgrab/backend/internal/logging"
)

// DefaultMaxDurationSeconds is the duration limit applied when none is configured.
const DefaultMaxDurationSeconds = 300

// Request is a single link submitted for acquisition.
type Request struct {
	URL         string
	RequestedAt time.Time
}

// Result is either Completed or Failed.
type Result interface {
	isResult()
}

// Completed describes a media file ready for delivery. The caller owns the
// file and must remove it once delivered.
type Completed struct {
	FilePath        string
	Title           string
	DurationSeconds int
}

// Failed describes why acquisition stopped.
type Failed struct {
	Reason ErrorKind
	Detail string
}

func (Completed) isResult() {}
func (Failed) isResult()    {}

// PipelineConfig controls where downloads land and which policy applies.
type PipelineConfig struct {
	DownloadDir        string
	BotID              string
	MaxDurationSeconds int
}

// Pipeline turns a supported link into a downloaded file: probe, duration
// policy, download, then result normalisation.
type Pipeline struct {
	extractor   Extractor
	dir         string
	maxDuration int
	newName     func() string
}

// NewPipeline constructs a Pipeline writing into <DownloadDir>/<BotID>.
func NewPipeline(extractor Extractor, cfg PipelineConfig) *Pipeline {
	if cfg.MaxDurationSeconds <= 0 {
		cfg.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "downloads"
	}
	return &Pipeline{
		extractor:   extractor,
		dir:         filepath.Join(cfg.DownloadDir, cfg.BotID),
		maxDuration: cfg.MaxDurationSeconds,
		newName:     uuid.NewString,
	}
}

// Dir returns the bot-scoped download directory.
func (p *Pipeline) Dir() string {
	return p.dir
}

// MaxDurationSeconds returns the configured duration limit.
func (p *Pipeline) MaxDurationSeconds() int {
	return p.maxDuration
}

// Acquire runs the pipeline for req. It never returns a Go error; every
// failure is reported as Failed.
func (p *Pipeline) Acquire(ctx context.Context, req Request) Result {
	ctx, span := logging.StartSpan(ctx, "videos.acquire")
	defer span.End()

	logger := logging.FromContext(ctx).With(slog.String("platform", string(DetectPlatform(req.URL))))

	if p == nil || p.extractor == nil {
		span.RecordError(ErrProviderUnavailable)
		return failedFrom(ErrProviderUnavailable)
	}

	meta, err := p.extractor.Probe(ctx, req.URL)
	if err != nil {
		span.RecordError(err)
		return failedFrom(err)
	}

	if meta.DurationSeconds > p.maxDuration {
		detail := fmt.Sprintf("video is %ds long, limit is %ds", meta.DurationSeconds, p.maxDuration)
		if isYouTubeWithoutShortsPath(req.URL) {
			detail = "not a Shorts link and " + detail
		}
		logger.Info("duration limit exceeded", slog.Int("duration", meta.DurationSeconds), slog.Int("limit", p.maxDuration))
		return Failed{Reason: KindDurationExceeded, Detail: detail}
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		err = fmt.Errorf("create download directory: %w", err)
		span.RecordError(err)
		return failedFrom(err)
	}

	name := p.newName()
	reported, err := p.extractor.Download(ctx, req.URL, DownloadTarget{Dir: p.dir, Name: name})
	if err != nil {
		span.RecordError(err)
		return failedFrom(err)
	}

	path, err := p.resolveOutput(reported, name)
	if err != nil {
		span.RecordError(err)
		return failedFrom(err)
	}
	if path != reported {
		logger.Warn("download path fallback", slog.String("reported", reported), slog.String("resolved", path))
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = "video"
	}

	return Completed{FilePath: path, Title: title, DurationSeconds: meta.DurationSeconds}
}

// resolveOutput finds the file produced by a download. The reported path wins,
// then any file carrying the request's unique name, then the most recently
// modified file in the directory.
func (p *Pipeline) resolveOutput(reported, name string) (string, error) {
	if reported != "" && isRegularFile(reported) {
		return reported, nil
	}

	matches, err := filepath.Glob(filepath.Join(p.dir, name+".*"))
	if err == nil {
		for _, match := range matches {
			if !isPartialDownload(match) && isRegularFile(match) {
				return match, nil
			}
		}
	}

	return newestFile(p.dir)
}

func newestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read download directory: %w", err)
	}

	var (
		newest   string
		newestAt time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || isPartialDownload(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest = filepath.Join(dir, entry.Name())
			newestAt = info.ModTime()
		}
	}

	if newest == "" {
		return "", ErrNoOutputFile
	}
	return newest, nil
}

func isPartialDownload(name string) bool {
	return strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.HasSuffix(name, ".temp")
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func failedFrom(err error) Failed {
	detail := err.Error()
	if errors.Is(err, ErrProviderUnavailable) {
		detail = "extractor unavailable"
	}
	return Failed{Reason: Classify(err), Detail: detail}
}
