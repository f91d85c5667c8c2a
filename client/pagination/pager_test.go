package pagination

import (
	"context"
	"errors"
	"testing"
	"time"

	"transcriber/client/model"
)

func completedJob(id string) model.Job {
	now := time.Now().UTC()
	return model.Job{
		ID:          id,
		FileName:    id + ".mp3",
		Status:      model.StatusCompleted,
		Progress:    100,
		CompletedAt: &now,
	}
}

func jobIDs(jobs []model.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestCompletedPager_MergeDeduplicates(t *testing.T) {
	pages := [][]model.Job{
		{completedJob("A"), completedJob("B")},
		{completedJob("B"), completedJob("C")},
	}
	calls := 0
	p := NewCompletedPager(2, func(ctx context.Context, offset, limit int) ([]model.Job, bool, error) {
		page := pages[calls]
		calls++
		return page, calls < len(pages), nil
	})

	if err := p.LoadMore(context.Background()); err != nil {
		t.Fatalf("first LoadMore failed: %v", err)
	}
	if err := p.LoadMore(context.Background()); err != nil {
		t.Fatalf("second LoadMore failed: %v", err)
	}

	got := jobIDs(p.Jobs())
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}

func TestCompletedPager_HeldRecordWinsOnDuplicate(t *testing.T) {
	held := completedJob("B")
	held.FileName = "fresh.mp3"

	stale := completedJob("B")
	stale.FileName = "stale.mp3"

	p := NewCompletedPager(2, func(ctx context.Context, offset, limit int) ([]model.Job, bool, error) {
		return []model.Job{stale, completedJob("C")}, false, nil
	})
	p.Replace([]model.Job{completedJob("A"), held})

	if err := p.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	for _, j := range p.Jobs() {
		if j.ID == "B" && j.FileName != "fresh.mp3" {
			t.Errorf("held record for B must win over the paged duplicate, got %q", j.FileName)
		}
	}
}

func TestCompletedPager_OffsetFollowsHeldSize(t *testing.T) {
	var offsets []int
	p := NewCompletedPager(2, func(ctx context.Context, offset, limit int) ([]model.Job, bool, error) {
		offsets = append(offsets, offset)
		return []model.Job{completedJob("x")}, false, nil
	})
	p.Replace([]model.Job{completedJob("A"), completedJob("B"), completedJob("C")})

	if err := p.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}

	if len(offsets) != 1 || offsets[0] != 3 {
		t.Errorf("Expected offset 3 (held size), got %v", offsets)
	}
}

func TestCompletedPager_LoadErrorLeavesHeldIntact(t *testing.T) {
	p := NewCompletedPager(2, func(ctx context.Context, offset, limit int) ([]model.Job, bool, error) {
		return nil, false, errors.New("registry unavailable")
	})
	p.Replace([]model.Job{completedJob("A")})

	if err := p.LoadMore(context.Background()); err == nil {
		t.Fatal("Expected LoadMore to surface the loader error")
	}
	if len(p.Jobs()) != 1 {
		t.Errorf("held set must be untouched on error, got %v", jobIDs(p.Jobs()))
	}
	if !p.HasMore() {
		t.Error("hasMore must not flip on a failed load")
	}
}

func TestCompletedPager_HasMore(t *testing.T) {
	p := NewCompletedPager(2, func(ctx context.Context, offset, limit int) ([]model.Job, bool, error) {
		return []model.Job{completedJob("A")}, false, nil
	})

	if !p.HasMore() {
		t.Error("a fresh pager should report more pages available")
	}
	if err := p.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore failed: %v", err)
	}
	if p.HasMore() {
		t.Error("hasMore must clear when the server reports the end")
	}
}

func TestActivePager_WindowResetsOnSizeChange(t *testing.T) {
	p := NewActivePager(2)

	jobs := []model.Job{
		completedJob("a"), completedJob("b"),
		completedJob("c"), completedJob("d"),
	}

	p.Window(jobs)
	p.Next()
	if page := p.Page(); page != 1 {
		t.Fatalf("Expected page 1 after Next, got %d", page)
	}

	got := p.Window(jobs)
	if len(got) != 2 || got[0].ID != "c" {
		t.Errorf("Expected second page [c d], got %v", jobIDs(got))
	}

	// A job completed and left the collection; the window snaps back.
	shrunk := jobs[:3]
	got = p.Window(shrunk)
	if p.Page() != 0 {
		t.Errorf("Expected page reset to 0 on size change, got %d", p.Page())
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Errorf("Expected first page [a b] after reset, got %v", jobIDs(got))
	}
}

func TestActivePager_NextStopsAtLastPage(t *testing.T) {
	p := NewActivePager(2)
	jobs := []model.Job{completedJob("a"), completedJob("b"), completedJob("c")}

	p.Window(jobs)
	p.Next()
	p.Next()
	p.Next()

	if p.Page() != 1 {
		t.Errorf("Expected page pinned at 1, got %d", p.Page())
	}

	got := p.Window(jobs)
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("Expected last page [c], got %v", jobIDs(got))
	}
}

func TestActivePager_PrevStopsAtZero(t *testing.T) {
	p := NewActivePager(2)
	jobs := []model.Job{completedJob("a"), completedJob("b"), completedJob("c")}

	p.Window(jobs)
	p.Prev()
	if p.Page() != 0 {
		t.Errorf("Expected page pinned at 0, got %d", p.Page())
	}
}
