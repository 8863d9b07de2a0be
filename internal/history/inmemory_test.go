package history

import (
	"context"
	"testing"
)

func TestInMemoryStoreRecentOrderAndLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, prompt := range []string{"first", "second", "third"} {
		err := s.SaveExchange(ctx, ExchangeRecord{ClientID: "c1", Kind: KindChat, Prompt: prompt})
		if err != nil {
			t.Fatalf("SaveExchange() error = %v", err)
		}
	}

	got, err := s.Recent(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 || got[0].Prompt != "second" || got[1].Prompt != "third" {
		t.Fatalf("unexpected recent exchanges: %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("record should be assigned an ID and timestamp")
	}
}

func TestInMemoryStoreUnknownClient(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.Recent(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
