package cities

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedCity(t *testing.T, repo *MemoryRepo, id, name string) City {
	t.Helper()
	city := City{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	if err := repo.Create(context.Background(), city); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return city
}

func TestMemoryRepoListNeedingEnrichmentKeepsInsertionOrder(t *testing.T) {
	repo := NewMemoryRepo()
	seedCity(t, repo, "c1", "서울")
	seedCity(t, repo, "c2", "Paris")
	seedCity(t, repo, "c3", "Rome")

	err := repo.Update(context.Background(), "c2", func(c *City) (bool, error) {
		c.ImageURL = StringPtr("https://x/paris.jpg")
		c.LocalImageFilename = StringPtr("paris.jpg")
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.ListNeedingEnrichment(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c3" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestMemoryRepoPartialEnrichmentStillNeedsWork(t *testing.T) {
	repo := NewMemoryRepo()
	seedCity(t, repo, "c1", "Seoul")
	_ = repo.Update(context.Background(), "c1", func(c *City) (bool, error) {
		c.ImageURL = StringPtr("https://x/seoul.jpg")
		return true, nil
	})
	got, _ := repo.ListNeedingEnrichment(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected record with url but no local file to still need enrichment")
	}
}

func TestMemoryRepoUpdateUnchangedDoesNotWrite(t *testing.T) {
	repo := NewMemoryRepo()
	created := seedCity(t, repo, "c1", "Seoul")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := repo.Observe(ctx)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	err = repo.Update(context.Background(), "c1", func(c *City) (bool, error) {
		c.Name = "mutated but discarded"
		return false, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), "c1")
	if got.Name != created.Name {
		t.Fatalf("expected unchanged name, got %q", got.Name)
	}
	select {
	case evt := <-events:
		t.Fatalf("unexpected change event %+v", evt)
	default:
	}
}

func TestMemoryRepoUpdateMissing(t *testing.T) {
	repo := NewMemoryRepo()
	err := repo.Update(context.Background(), "nope", func(c *City) (bool, error) { return true, nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	repo := NewMemoryRepo()
	seedCity(t, repo, "c1", "Seoul")
	_ = repo.Update(context.Background(), "c1", func(c *City) (bool, error) {
		c.ImageURL = StringPtr("https://x/a.jpg")
		return true, nil
	})
	got, _ := repo.GetByID(context.Background(), "c1")
	*got.ImageURL = "https://evil/b.jpg"

	again, _ := repo.GetByID(context.Background(), "c1")
	if Deref(again.ImageURL) != "https://x/a.jpg" {
		t.Fatalf("store aliased caller memory: %q", Deref(again.ImageURL))
	}
}

func TestMemoryRepoObserveEmitsInsertAndUpdate(t *testing.T) {
	repo := NewMemoryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	events, err := repo.Observe(ctx)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	seedCity(t, repo, "c1", "Seoul")
	_ = repo.Update(context.Background(), "c1", func(c *City) (bool, error) {
		c.ImageURL = StringPtr("https://x/a.jpg")
		return true, nil
	})

	first := <-events
	second := <-events
	if first != (ChangeEvent{Op: ChangeInsert, ID: "c1"}) {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second != (ChangeEvent{Op: ChangeUpdate, ID: "c1"}) {
		t.Fatalf("unexpected second event %+v", second)
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestMemoryRepoRejectsDuplicateIDs(t *testing.T) {
	repo := NewMemoryRepo()
	seedCity(t, repo, "c1", "Seoul")
	err := repo.Create(context.Background(), City{ID: "c1", Name: "Busan"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestNeedsEnrichmentTreatsBlankAsMissing(t *testing.T) {
	blank := "  "
	url := "https://x/a.jpg"
	file := "a.jpg"
	tests := []struct {
		name string
		city City
		want bool
	}{
		{name: "both nil", city: City{}, want: true},
		{name: "url only", city: City{ImageURL: &url}, want: true},
		{name: "file only", city: City{LocalImageFilename: &file}, want: true},
		{name: "blank file", city: City{ImageURL: &url, LocalImageFilename: &blank}, want: true},
		{name: "complete", city: City{ImageURL: &url, LocalImageFilename: &file}, want: false},
	}
	for _, tt := range tests {
		if got := tt.city.NeedsEnrichment(); got != tt.want {
			t.Fatalf("%s: NeedsEnrichment = %v, want %v", tt.name, got, tt.want)
		}
	}
}
