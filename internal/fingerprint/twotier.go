package fingerprint

// Record is what a cache entry stores per source file: the metadata
// fingerprint seen at last build and the authoritative content fingerprint.
type Record struct {
	Metadata string
	Content  Content
}

// TwoTierResult reports the outcome of Check along with which tier
// resolved it, for the accounting the scheduler exposes (spec scenario 6:
// "content hash count", "metadata hit count").
type TwoTierResult struct {
	Unchanged  bool
	UsedTier   Tier
	NewRecord  Record
}

type Tier int

const (
	TierMetadata Tier = iota
	TierContent
)

// Check validates path against a previously recorded Record, per §4.2's
// two-tier algorithm:
//  1. compute the metadata fingerprint; if it matches, declare unchanged
//     without touching file contents.
//  2. otherwise compute the content fingerprint and compare against the
//     recorded one.
//
// Untouched files thus cost only step 1; touch-only edits (which change the
// mtime) and real edits cost both steps.
func Check(h *Hasher, path string, prev Record) (TwoTierResult, error) {
	meta, err := StatMetadata(path)
	if err != nil {
		return TwoTierResult{}, err
	}
	encoded := meta.Encode()
	if encoded == prev.Metadata {
		return TwoTierResult{Unchanged: true, UsedTier: TierMetadata, NewRecord: prev}, nil
	}

	content, err := h.HashFile(path)
	if err != nil {
		return TwoTierResult{}, err
	}
	rec := Record{Metadata: encoded, Content: content}
	if content == prev.Content {
		return TwoTierResult{Unchanged: true, UsedTier: TierContent, NewRecord: rec}, nil
	}
	return TwoTierResult{Unchanged: false, UsedTier: TierContent, NewRecord: rec}, nil
}
