package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return s
}

func TestNotebookVisibility(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	openID, err := s.CreateNotebook(ctx, "Shared", "alice", now)
	if err != nil {
		t.Fatalf("CreateNotebook() error = %v", err)
	}
	closedID, err := s.CreateNotebook(ctx, "Private", "alice", now)
	if err != nil {
		t.Fatalf("CreateNotebook() error = %v", err)
	}
	if err := s.SetNotebookClosed(ctx, closedID, true, now); err != nil {
		t.Fatalf("SetNotebookClosed() error = %v", err)
	}

	forAlice, err := s.ListNotebooks(ctx, "alice")
	if err != nil {
		t.Fatalf("ListNotebooks(alice) error = %v", err)
	}
	if len(forAlice) != 2 {
		t.Errorf("alice sees %d notebooks, want 2", len(forAlice))
	}

	forBob, err := s.ListNotebooks(ctx, "bob")
	if err != nil {
		t.Fatalf("ListNotebooks(bob) error = %v", err)
	}
	if len(forBob) != 1 || forBob[0].ID != openID {
		t.Errorf("bob sees %v, want only the open notebook", forBob)
	}

	owner, err := s.IsOwner(ctx, closedID, "alice")
	if err != nil || !owner {
		t.Errorf("IsOwner(alice) = %v, %v; creator must own the notebook", owner, err)
	}
}

func TestPageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Unix(1700000000, 0)

	notebookID, err := s.CreateNotebook(ctx, "Work", "alice", now)
	if err != nil {
		t.Fatalf("CreateNotebook() error = %v", err)
	}
	sectionID, err := s.CreateSection(ctx, notebookID, "Meetings", "alice", now)
	if err != nil {
		t.Fatalf("CreateSection() error = %v", err)
	}

	page := Page{
		ID:        "page-1",
		SectionID: sectionID,
		Title:     "Kickoff",
		Tag:       "planning",
		BodyHTML:  "<body><p>agenda</p></body>",
		CreatedBy: "alice",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.InsertPage(ctx, page); err != nil {
		t.Fatalf("InsertPage() error = %v", err)
	}

	got, err := s.GetPage(ctx, "page-1")
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if got.Title != "Kickoff" || got.NotebookName != "Work" || got.SectionName != "Meetings" {
		t.Errorf("GetPage() = %+v", got)
	}

	if err := s.UpdatePage(ctx, "page-1", "Kickoff v2", "planning", "<body><p>updated</p></body>", now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdatePage() error = %v", err)
	}
	if err := s.UpdatePage(ctx, "missing", "x", "", "", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePage(missing) error = %v, want ErrNotFound", err)
	}

	deleted, err := s.DeletePage(ctx, "page-1")
	if err != nil || !deleted {
		t.Fatalf("DeletePage() = %v, %v", deleted, err)
	}
	if _, err := s.GetPage(ctx, "page-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPage(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestListPagesSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	notebookID, _ := s.CreateNotebook(ctx, "Work", "alice", now)
	sectionID, _ := s.CreateSection(ctx, notebookID, "Notes", "alice", now)

	insert := func(id, title, tag, body string) {
		t.Helper()
		err := s.InsertPage(ctx, Page{
			ID: id, SectionID: sectionID, Title: title, Tag: tag, BodyHTML: body,
			CreatedBy: "alice", CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("InsertPage(%s) error = %v", id, err)
		}
	}
	insert("p1", "Budget review", "finance", "<body>numbers</body>")
	insert("p2", "Team lunch", "social", "<body>the budget was tight</body>")
	insert("p3", "Standup", "", "<body>nothing</body>")

	pages, total, err := s.ListPages(ctx, "alice", PageFilter{Search: "budget"})
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if total != 2 || len(pages) != 2 {
		t.Errorf("text search returned %d/%d, want 2", len(pages), total)
	}

	pages, total, err = s.ListPages(ctx, "alice", PageFilter{Search: "finance", TagsOnly: true})
	if err != nil {
		t.Fatalf("ListPages(tags) error = %v", err)
	}
	if total != 1 || len(pages) != 1 || pages[0].ID != "p1" {
		t.Errorf("tag search = %v (total %d), want only p1", pages, total)
	}

	pages, _, err = s.ListPages(ctx, "alice", PageFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListPages(limit) error = %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("limit ignored, got %d rows", len(pages))
	}
}

func TestListPagesHidesClosedNotebooks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	notebookID, _ := s.CreateNotebook(ctx, "Secret", "alice", now)
	sectionID, _ := s.CreateSection(ctx, notebookID, "s", "alice", now)
	_ = s.SetNotebookClosed(ctx, notebookID, true, now)
	_ = s.InsertPage(ctx, Page{
		ID: "p1", SectionID: sectionID, Title: "hidden",
		CreatedBy: "alice", CreatedAt: now, UpdatedAt: now,
	})

	_, total, err := s.ListPages(ctx, "bob", PageFilter{})
	if err != nil {
		t.Fatalf("ListPages(bob) error = %v", err)
	}
	if total != 0 {
		t.Errorf("bob sees %d pages in a closed notebook, want 0", total)
	}

	_, total, err = s.ListPages(ctx, "alice", PageFilter{})
	if err != nil {
		t.Fatalf("ListPages(alice) error = %v", err)
	}
	if total != 1 {
		t.Errorf("owner sees %d pages, want 1", total)
	}
}

func TestEnsureInbox(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	first, err := s.EnsureInbox(ctx, "alice", now)
	if err != nil {
		t.Fatalf("EnsureInbox() error = %v", err)
	}
	second, err := s.EnsureInbox(ctx, "alice", now)
	if err != nil {
		t.Fatalf("EnsureInbox() second call error = %v", err)
	}
	if first != second {
		t.Errorf("EnsureInbox not idempotent: %d then %d", first, second)
	}

	other, err := s.EnsureInbox(ctx, "bob", now)
	if err != nil {
		t.Fatalf("EnsureInbox(bob) error = %v", err)
	}
	if other == first {
		t.Error("inboxes must be per user")
	}
}
