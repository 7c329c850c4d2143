package core

import (
	"context"
	"errors"
	"testing"
)

func TestResolveCreatesMissingProfile(t *testing.T) {
	store := newFakeStore()
	r := NewProfileResolver(store)

	id := testIdentity("bob")
	p, err := r.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.ID != "bob" {
		t.Fatalf("unexpected profile id: %s", p.ID)
	}
	if p.Username == "" {
		t.Fatal("username should be derived from claims")
	}

	// subsequent fetch returns the same record
	fetched, err := r.Fetch(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Fetch after create: %v", err)
	}
	if fetched.ID != p.ID || fetched.Username != p.Username {
		t.Fatalf("fetched %+v, created %+v", fetched, p)
	}
}

func TestResolveReturnsExistingUnchanged(t *testing.T) {
	store := newFakeStore()
	r := NewProfileResolver(store)

	id := testIdentity("alice")
	if _, err := r.Resolve(context.Background(), id); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	created := store.createCalls

	if _, err := r.Resolve(context.Background(), id); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if store.createCalls != created {
		t.Fatal("second resolve should fetch, not create")
	}
}

func TestResolveConflictTreatedAsSuccess(t *testing.T) {
	store := newFakeStore()
	r := NewProfileResolver(store)

	// a concurrent client created the row between our fetch and create:
	// the first fetch misses, the create collides, the re-fetch wins
	if _, err := r.Resolve(context.Background(), testIdentity("carol")); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	store.profileErrOnce = ErrNotFound

	p, err := r.Resolve(context.Background(), testIdentity("carol"))
	if err != nil {
		t.Fatalf("Resolve after conflict: %v", err)
	}
	if p.ID != "carol" {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestResolveFailsWhenCreateAndFetchFail(t *testing.T) {
	store := newFakeStore()
	store.profileErr = ErrNotFound
	store.createErr = errors.New("db down")
	r := NewProfileResolver(store)

	_, err := r.Resolve(context.Background(), testIdentity("dave"))
	if !errors.Is(err, ErrProfileResolution) {
		t.Fatalf("want ErrProfileResolution, got %v", err)
	}
}
