package dedupe

import (
	"testing"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

func tx(date string, value float64, desc, account string) domain.NormalizedTransaction {
	return domain.NormalizedTransaction{
		Date:        date,
		Value:       value,
		Description: desc,
		AccountID:   account,
	}
}

func TestComputeHash(t *testing.T) {
	base := tx("2024-10-25", -123.45, "UBER * TRIP HELP", "acc-1")

	t.Run("stable for identical input", func(t *testing.T) {
		h1 := HashTransaction(base)
		h2 := HashTransaction(base)
		if h1 != h2 {
			t.Errorf("hashes differ: %s vs %s", h1, h2)
		}
		if len(h1) != 64 {
			t.Errorf("hash length = %d, want 64", len(h1))
		}
	})

	t.Run("differs by date", func(t *testing.T) {
		other := base
		other.Date = "2024-10-26"
		if HashTransaction(base) == HashTransaction(other) {
			t.Error("different dates produced same hash")
		}
	})

	t.Run("differs by value", func(t *testing.T) {
		other := base
		other.Value = -123.46
		if HashTransaction(base) == HashTransaction(other) {
			t.Error("different values produced same hash")
		}
	})

	t.Run("differs by account", func(t *testing.T) {
		other := base
		other.AccountID = "acc-2"
		if HashTransaction(base) == HashTransaction(other) {
			t.Error("different accounts produced same hash")
		}
	})

	t.Run("description normalized before hashing", func(t *testing.T) {
		a := tx("2024-10-25", -10, "  uber   trip  ", "acc-1")
		b := tx("2024-10-25", -10, "UBER TRIP", "acc-1")
		if HashTransaction(a) != HashTransaction(b) {
			t.Error("equivalent descriptions produced different hashes")
		}
	})

	t.Run("accents do not affect hash", func(t *testing.T) {
		a := tx("2024-10-25", -10, "Padaria São José", "acc-1")
		b := tx("2024-10-25", -10, "PADARIA SAO JOSE", "acc-1")
		if HashTransaction(a) != HashTransaction(b) {
			t.Error("accented description produced different hash")
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		hashes := make(map[string]struct{})
		for i := 0; i < 10; i++ {
			hashes[HashTransaction(base)] = struct{}{}
		}
		if len(hashes) != 1 {
			t.Errorf("got %d distinct hashes, want 1", len(hashes))
		}
	})
}

func TestIsDuplicate(t *testing.T) {
	existing := map[string]struct{}{"hash1": {}, "hash2": {}, "hash3": {}}

	if !IsDuplicate("hash1", existing) {
		t.Error("hash1 should be a duplicate")
	}
	if IsDuplicate("hash4", existing) {
		t.Error("hash4 should not be a duplicate")
	}
	if IsDuplicate("any-hash", map[string]struct{}{}) {
		t.Error("empty set should never report duplicates")
	}
}

func TestIdentifyDuplicates(t *testing.T) {
	t.Run("repeat within batch", func(t *testing.T) {
		batch := []domain.NormalizedTransaction{
			tx("2024-10-25", -23.50, "UBER TRIP", "acc-1"),
			tx("2024-10-25", -23.50, "UBER TRIP", "acc-1"),
			tx("2024-10-26", -45.00, "IFOOD PEDIDO", "acc-1"),
		}

		result := IdentifyDuplicates(batch, nil)
		if len(result.Unique) != 2 {
			t.Fatalf("unique = %d, want 2", len(result.Unique))
		}
		if len(result.Duplicates) != 1 {
			t.Fatalf("duplicates = %d, want 1", len(result.Duplicates))
		}
		if result.Unique[0].Description != "UBER TRIP" || result.Unique[1].Description != "IFOOD PEDIDO" {
			t.Error("unique slice does not preserve first-seen order")
		}
	})

	t.Run("all unique", func(t *testing.T) {
		batch := []domain.NormalizedTransaction{
			tx("2024-10-25", -10, "A", "acc-1"),
			tx("2024-10-25", -20, "B", "acc-1"),
			tx("2024-10-25", -30, "C", "acc-1"),
		}

		result := IdentifyDuplicates(batch, nil)
		if len(result.Unique) != 3 || len(result.Duplicates) != 0 {
			t.Errorf("got %d unique, %d duplicates, want 3 and 0", len(result.Unique), len(result.Duplicates))
		}
	})

	t.Run("against stored hashes", func(t *testing.T) {
		stored := tx("2024-10-25", -23.50, "UBER TRIP", "acc-1")
		existing := map[string]struct{}{HashTransaction(stored): {}}

		batch := []domain.NormalizedTransaction{
			stored,
			tx("2024-10-26", -45.00, "IFOOD PEDIDO", "acc-1"),
		}

		result := IdentifyDuplicates(batch, existing)
		if len(result.Unique) != 1 || len(result.Duplicates) != 1 {
			t.Fatalf("got %d unique, %d duplicates, want 1 and 1", len(result.Unique), len(result.Duplicates))
		}
		if _, still := existing[HashTransaction(batch[1])]; still {
			t.Error("existing set must not be mutated")
		}
	})

	t.Run("same transaction different accounts", func(t *testing.T) {
		batch := []domain.NormalizedTransaction{
			tx("2024-10-25", -23.50, "UBER TRIP", "acc-1"),
			tx("2024-10-25", -23.50, "UBER TRIP", "acc-2"),
		}

		result := IdentifyDuplicates(batch, nil)
		if len(result.Unique) != 2 {
			t.Errorf("cross-account transactions must not collide, unique = %d", len(result.Unique))
		}
	})
}
