package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

const defaultTranscriptLines = 5000

// BlobStore persists opaque objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Transcript is the archived record of one session.
type Transcript struct {
	Final progress.Snapshot  `json:"final"`
	Lines []progress.LogLine `json:"lines"`
	// Truncated counts lines dropped from the front of Lines.
	Truncated int `json:"truncated,omitempty"`
}

// ArchiveSink collects each session's log lines and writes a transcript to a
// blob store when the session ends.
type ArchiveSink struct {
	blobs    BlobStore
	prefix   string
	maxLines int
	logger   *zap.Logger
	tracker  tracker

	mu        sync.Mutex
	lines     []progress.LogLine
	truncated int
}

// NewArchiveSink writes transcripts under prefix in blobs.
func NewArchiveSink(blobs BlobStore, prefix string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{
		blobs:    blobs,
		prefix:   prefix,
		maxLines: defaultTranscriptLines,
		logger:   logger.Named("archive_sink"),
	}
}

// Consume buffers lines and uploads a transcript for every finished session.
func (s *ArchiveSink) Consume(ctx context.Context, batch []progress.Snapshot) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	for _, snap := range batch {
		c := s.tracker.observe(snap)
		if c.started || !c.sameSession {
			s.reset()
		}
		s.record(snap.Lines)
		if !c.finished {
			continue
		}
		if err := s.upload(ctx, c.id.String(), snap); err != nil {
			return err
		}
		s.reset()
	}
	return nil
}

func (s *ArchiveSink) upload(ctx context.Context, id string, final progress.Snapshot) error {
	s.mu.Lock()
	t := Transcript{Final: final, Lines: append([]progress.LogLine(nil), s.lines...), Truncated: s.truncated}
	s.mu.Unlock()
	t.Final.Lines = nil

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	key := path.Join(s.prefix, id+".json")
	uri, err := s.blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("archive transcript: %w", err)
	}
	s.logger.Info("session transcript archived", zap.String("session_id", id), zap.String("uri", uri))
	return nil
}

func (s *ArchiveSink) record(lines []progress.LogLine) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, lines...)
	if over := len(s.lines) - s.maxLines; over > 0 {
		s.lines = append([]progress.LogLine(nil), s.lines[over:]...)
		s.truncated += over
	}
}

func (s *ArchiveSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.truncated = 0
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
