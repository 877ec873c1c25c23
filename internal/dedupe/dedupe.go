// Package dedupe detects duplicate transactions across and within
// imports using a content hash over the canonical transaction fields.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/normalize"
)

// ComputeHash returns the SHA-256 hex digest of
// date|value|normalized_description|account_id. The same digest is
// computed on insert server-side, so the rendering of each field must
// stay stable: ISO date, shortest round-trip float, canonical
// description.
func ComputeHash(date string, value float64, description, accountID string) string {
	desc := normalize.Description(description)
	key := date + "|" + strconv.FormatFloat(value, 'f', -1, 64) + "|" + desc + "|" + accountID

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashTransaction computes the dedupe hash for a normalized
// transaction.
func HashTransaction(tx domain.NormalizedTransaction) string {
	return ComputeHash(tx.Date, tx.Value, tx.Description, tx.AccountID)
}

// IsDuplicate reports whether the hash was already seen.
func IsDuplicate(hash string, existing map[string]struct{}) bool {
	_, ok := existing[hash]
	return ok
}

// SplitResult separates a batch into first occurrences and repeats.
// Order within each slice follows the input.
type SplitResult struct {
	Unique     []domain.NormalizedTransaction
	Duplicates []domain.NormalizedTransaction
}

// IdentifyDuplicates partitions the batch against the set of hashes
// already stored for the account. A transaction repeated inside the
// batch itself counts as a duplicate from its second occurrence on.
// The existing set is not modified.
func IdentifyDuplicates(batch []domain.NormalizedTransaction, existing map[string]struct{}) SplitResult {
	seen := make(map[string]struct{}, len(existing)+len(batch))
	for h := range existing {
		seen[h] = struct{}{}
	}

	var result SplitResult
	for _, tx := range batch {
		h := HashTransaction(tx)
		if _, dup := seen[h]; dup {
			result.Duplicates = append(result.Duplicates, tx)
			continue
		}
		seen[h] = struct{}{}
		result.Unique = append(result.Unique, tx)
	}
	return result
}
