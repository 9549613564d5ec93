package domain

import (
	"context"
	"time"
)

// ProgressListener receives byte progress from a fetch.
type ProgressListener interface {
	OnProgress(done, total int64)
}

// ProgressFunc adapts a plain function to ProgressListener.
type ProgressFunc func(done, total int64)

func (f ProgressFunc) OnProgress(done, total int64) {
	if f != nil {
		f(done, total)
	}
}

// FetchResult describes downloaded content.
type FetchResult struct {
	Title    string
	Artist   string
	Path     string
	Duration time.Duration
}

// Fetcher is the driven port for downloading source media.
type Fetcher interface {
	Name() string
	Match(url string) bool
	Fetch(ctx context.Context, url, destDir string, progress ProgressListener) (FetchResult, error)
}

// ConvertRequest describes one transcode.
type ConvertRequest struct {
	Input    string
	Output   string
	Format   string
	Bitrate  int // kbps, 0 for codec default
	Metadata map[string]string
	Duration time.Duration
}

// ConvertProgress receives processed media time during a transcode.
type ConvertProgress func(processed, total time.Duration)

// Converter is the driven port for transcoding.
type Converter interface {
	Convert(ctx context.Context, req ConvertRequest, progress ConvertProgress) error
}

// RunSummary is one recorded batch run.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Successful int
	Failed     int
	Cancelled  int
	Skipped    int
}

// HistoryRepository is the driven port for the download ledger.
type HistoryRepository interface {
	StartRun(ctx context.Context, runID string, total int) error
	RecordJob(ctx context.Context, runID, key string, job JobSnapshot) error
	FinishRun(ctx context.Context, summary RunSummary) error
	FindCompleted(ctx context.Context, key string) (string, error)
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
