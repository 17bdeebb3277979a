package videos

import "context"

// Metadata captures the subset of probe output the bot relies on.
type Metadata struct {
	ID              string
	Title           string
	Description     string
	Thumbnail       string
	DurationSeconds int
	Extractor       string
	WebpageURL      string
}

// DownloadTarget names where a download must be written. Name has no extension;
// the extractor picks one from the media container.
type DownloadTarget struct {
	Dir  string
	Name string
}

// Extractor resolves a link to metadata and downloads its media.
type Extractor interface {
	Probe(ctx context.Context, url string) (Metadata, error)
	Download(ctx context.Context, url string, target DownloadTarget) (string, error)
}
