package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestListFiltering(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	store := newFakeStorage()
	store.put("reviews/agoda/a.jl", "content-a", base)
	store.put("reviews/agoda/b.jsonl", "content-b", base.Add(time.Hour))
	store.put("reviews/agoda/notes.txt", "readme", base)
	store.put("reviews/agoda/empty.jl", "", base)
	store.put("reviews/booking/c.jl", "content-c", base)

	lister := NewLister(store, nil)
	candidates, err := lister.List(context.Background(), "reviews/agoda/", nil)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	want := []string{"reviews/agoda/a.jl", "reviews/agoda/b.jsonl"}
	if len(candidates) != len(want) {
		t.Fatalf("candidates: got %d, want %d", len(candidates), len(want))
	}
	for i, key := range want {
		if candidates[i].Key != key {
			t.Errorf("candidate %d: got %q, want %q", i, candidates[i].Key, key)
		}
	}
}

func TestListOldestFirst(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	store := newFakeStorage()
	store.put("reviews/z-newest.jl", "z", base.Add(2*time.Hour))
	store.put("reviews/a-oldest.jl", "a", base)
	store.put("reviews/m-middle.jl", "m", base.Add(time.Hour))

	lister := NewLister(store, nil)
	candidates, err := lister.List(context.Background(), "reviews/", nil)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	want := []string{"reviews/a-oldest.jl", "reviews/m-middle.jl", "reviews/z-newest.jl"}
	for i, key := range want {
		if candidates[i].Key != key {
			t.Errorf("position %d: got %q, want %q", i, candidates[i].Key, key)
		}
	}
}

func TestListSinceCutoff(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	store := newFakeStorage()
	store.put("reviews/old.jl", "old", base)
	store.put("reviews/new.jl", "new", base.Add(time.Hour))

	lister := NewLister(store, nil)
	since := base.Add(30 * time.Minute)
	candidates, err := lister.List(context.Background(), "reviews/", &since)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	if len(candidates) != 1 || candidates[0].Key != "reviews/new.jl" {
		t.Errorf("candidates: got %v, want only reviews/new.jl", candidates)
	}
}

func TestListError(t *testing.T) {
	store := newFakeStorage()
	store.listErr = errors.New("connection reset")

	lister := NewLister(store, nil)
	_, err := lister.List(context.Background(), "reviews/", nil)
	if !errors.Is(err, ErrListFailed) {
		t.Errorf("error: got %v, want ErrListFailed", err)
	}
}

func TestHasRecognizedExtension(t *testing.T) {
	testCases := []struct {
		key  string
		want bool
	}{
		{"reviews/a.jl", true},
		{"reviews/a.jsonl", true},
		{"reviews/A.JL", true},
		{"reviews/a.json", false},
		{"reviews/a.csv", false},
		{"reviews/jl", false},
	}

	for _, tc := range testCases {
		if got := hasRecognizedExtension(tc.key); got != tc.want {
			t.Errorf("hasRecognizedExtension(%q): got %v, want %v", tc.key, got, tc.want)
		}
	}
}
