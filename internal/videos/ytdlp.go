package videos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLPProvider probes and downloads media using the yt-dlp CLI tool.
type YTDLPProvider struct {
	Binary          string
	ProbeArgs       []string
	DownloadArgs    []string
	Proxy           string
	Run             CommandRunner
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
}

// NewYTDLPProvider constructs an Extractor that shells out to yt-dlp.
func NewYTDLPProvider(binary string, probeTimeout, downloadTimeout time.Duration) *YTDLPProvider {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	if downloadTimeout <= 0 {
		downloadTimeout = 5 * time.Minute
	}
	return &YTDLPProvider{
		Binary:          binary,
		ProbeArgs:       []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download"},
		DownloadArgs:    []string{"--no-warnings", "--no-playlist", "--no-progress", "--format", "best[ext=mp4]/best"},
		Run:             defaultCommandRunner,
		ProbeTimeout:    probeTimeout,
		DownloadTimeout: downloadTimeout,
	}
}

// Probe executes yt-dlp in metadata-only mode and parses the JSON response.
func (p *YTDLPProvider) Probe(ctx context.Context, url string) (Metadata, error) {
	if p == nil {
		return Metadata{}, ErrProviderUnavailable
	}

	args := append([]string{}, p.ProbeArgs...)
	args = append(args, p.proxyArgs()...)
	args = append(args, url)

	out, err := p.run(ctx, "probe", p.ProbeTimeout, args)
	if err != nil {
		return Metadata{}, err
	}

	var payload struct {
		ID           string   `json:"id"`
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		Thumbnail    string   `json:"thumbnail"`
		Duration     *float64 `json:"duration"`
		ExtractorKey string   `json:"extractor_key"`
		WebpageURL   string   `json:"webpage_url"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return Metadata{}, fmt.Errorf("parse yt-dlp response: %w", err)
	}

	if payload.ID == "" && payload.Title == "" && payload.Duration == nil {
		return Metadata{}, ErrEmptyMetadata
	}

	meta := Metadata{
		ID:          payload.ID,
		Title:       payload.Title,
		Description: payload.Description,
		Thumbnail:   payload.Thumbnail,
		Extractor:   payload.ExtractorKey,
		WebpageURL:  payload.WebpageURL,
	}
	if payload.Duration != nil && *payload.Duration > 0 {
		meta.DurationSeconds = int(math.Ceil(*payload.Duration))
	}
	return meta, nil
}

// Download fetches the media into target and returns the path yt-dlp reports
// for the final file. The path may be empty if yt-dlp printed nothing.
func (p *YTDLPProvider) Download(ctx context.Context, url string, target DownloadTarget) (string, error) {
	if p == nil {
		return "", ErrProviderUnavailable
	}

	template := filepath.Join(target.Dir, target.Name+".%(ext)s")

	args := append([]string{}, p.DownloadArgs...)
	args = append(args, p.proxyArgs()...)
	args = append(args, "--output", template, "--print", "after_move:filepath", "--no-simulate", url)

	out, err := p.run(ctx, "download", p.DownloadTimeout, args)
	if err != nil {
		return "", err
	}

	return lastLine(out), nil
}

func (p *YTDLPProvider) proxyArgs() []string {
	if p.Proxy == "" {
		return nil
	}
	return []string{"--proxy", p.Proxy}
}

func (p *YTDLPProvider) run(ctx context.Context, op string, timeout time.Duration, args []string) ([]byte, error) {
	run := p.Run
	if run == nil {
		run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(execCtx, p.Binary, args...)
	if err == nil {
		return out, nil
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return nil, &ExtractorError{Op: op, Err: fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return nil, &ExtractorError{Op: op, Err: fmt.Errorf("%w: %v", ErrBinaryNotFound, err)}
	}

	var stderr string
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr = string(exitErr.Stderr)
	}
	return nil, &ExtractorError{Op: op, Stderr: stderr, Err: err}
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return strings.TrimSpace(string(lines[len(lines)-1]))
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}

var _ Extractor = (*YTDLPProvider)(nil)
