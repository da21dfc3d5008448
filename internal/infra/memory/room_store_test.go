package memory

import "testing"

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()

	room := store.GetOrCreate("ABC123")
	if room == nil {
		t.Fatalf("expected room")
	}
	if again := store.GetOrCreate("ABC123"); again != room {
		t.Fatalf("expected same room instance")
	}
	if _, ok := store.Get("ABC123"); !ok {
		t.Fatalf("expected room present")
	}

	store.DeleteIfEmpty("ABC123")
	if _, ok := store.Get("ABC123"); ok {
		t.Fatalf("expected room removed when empty")
	}
}
