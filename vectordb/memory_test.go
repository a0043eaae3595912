package vectordb

import (
	"context"
	"strings"
	"testing"

	"github.com/bambooai/panda-gateway/schema"
)

func TestPartitionNameDerivation(t *testing.T) {
	a := PartitionName("alice@example.com")
	b := PartitionName("bob@example.com")

	if a == b {
		t.Fatal("distinct users mapped to the same partition")
	}
	if a != PartitionName("alice@example.com") {
		t.Error("derivation is not deterministic")
	}
	if !strings.HasPrefix(a, "users_") {
		t.Errorf("partition %q missing prefix", a)
	}
	if len(a) != len("users_")+32 {
		t.Errorf("partition %q has unexpected length", a)
	}
	if strings.Contains(a, "alice") {
		t.Error("raw user ID leaked into partition name")
	}
}

func TestMemoryStoreSearchOrdersByScore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	part := PartitionName("u1")

	err := s.AddDocs(ctx, part, []schema.Document{
		{ID: "far", Content: "far", Vector: []float32{0, 1}},
		{ID: "near", Content: "near", Vector: []float32{1, 0.1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.SearchDocs(ctx, part, []float32{1, 0}, schema.SearchOptions{TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Document.ID != "near" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestMemoryStorePartitionIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.AddDocs(ctx, PartitionName("u1"), []schema.Document{{ID: "d", Vector: []float32{1}}})

	got, err := s.SearchDocs(ctx, PartitionName("u2"), []float32{1}, schema.SearchOptions{TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("leaked %d docs across partitions", len(got))
	}
}

func TestMemoryStoreThreshold(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	part := PartitionName("u1")

	_ = s.AddDocs(ctx, part, []schema.Document{
		{ID: "orthogonal", Vector: []float32{0, 1}},
		{ID: "aligned", Vector: []float32{1, 0}},
	})

	got, err := s.SearchDocs(ctx, part, []float32{1, 0}, schema.SearchOptions{TopK: 5, Threshold: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Document.ID != "aligned" {
		t.Errorf("threshold filter failed: %+v", got)
	}
}
