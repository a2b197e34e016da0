package sync

import (
	"context"
	"errors"
	"sync"

	"collabhub/platform/internal/client"
	"collabhub/platform/internal/models"
)

// SummarySource says which path produced a project summary.
type SummarySource string

const (
	SourcePrimary  SummarySource = "primary"
	SourceFallback SummarySource = "fallback"
)

// Summarizer computes project summaries, preferring the server's
// project_summary function. The first 404 from that function is
// remembered and every later call goes straight to the fallback, which
// assembles the same counts from plain list queries.
type Summarizer struct {
	client *client.Client

	mu          sync.Mutex
	unavailable bool
}

func NewSummarizer(cli *client.Client) *Summarizer {
	return &Summarizer{client: cli}
}

func (s *Summarizer) Summarize(ctx context.Context, projectID string) (models.ProjectSummary, SummarySource, error) {
	s.mu.Lock()
	skip := s.unavailable
	s.mu.Unlock()

	if !skip {
		var summary models.ProjectSummary
		err := s.client.RPC(ctx, "project_summary", map[string]string{"project_id": projectID}, &summary)
		if err == nil {
			return summary, SourcePrimary, nil
		}
		if !errors.Is(err, client.ErrRPCUnavailable) {
			return models.ProjectSummary{}, SourcePrimary, err
		}
		s.mu.Lock()
		s.unavailable = true
		s.mu.Unlock()
	}

	summary, err := s.fallback(ctx, projectID)
	return summary, SourceFallback, err
}

func (s *Summarizer) fallback(ctx context.Context, projectID string) (models.ProjectSummary, error) {
	summary := models.ProjectSummary{ProjectID: projectID}

	tasks := NewCollection[models.Task](s.client, models.TableTasks)
	if err := tasks.Load(ctx, projectID); err != nil {
		return models.ProjectSummary{}, err
	}
	for _, t := range tasks.All() {
		summary.TaskCount++
		if t.Status == models.TaskDone {
			summary.DoneTaskCount++
		}
	}

	for _, count := range []struct {
		table string
		dst   *int
	}{
		{models.TableNotes, &summary.NoteCount},
		{models.TableMessages, &summary.MessageCount},
		{models.TableFiles, &summary.FileCount},
	} {
		rows, err := s.client.ListRows(ctx, count.table, projectID)
		if err != nil {
			return models.ProjectSummary{}, err
		}
		*count.dst = len(rows)
	}
	return summary, nil
}
