// Package syncer pulls mail from pull-based channels on a schedule, feeds it to
// the ingestion service and maintains each channel's sync watermark.
package syncer

import (
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

const (
	// Overlap re-reads the hour before the watermark; dedup absorbs the repeats.
	// It does not apply to the initial lookback.
	Overlap = time.Hour
	// InitialLookback applies to channels that never synced.
	InitialLookback = 24 * time.Hour
)

// Since returns the start of the fetch window [since, now) for a channel.
func Since(channel *domain.Channel, now time.Time) time.Time {
	since := now.Add(-InitialLookback)
	if channel.LastSyncAt != nil {
		since = channel.LastSyncAt.Add(-Overlap)
	}
	if channel.ImportSince != nil && channel.ImportSince.After(since) {
		since = *channel.ImportSince
	}
	return since
}
