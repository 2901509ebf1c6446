package history

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// entryDomainKey keys the BLAKE3 hash so entry digests cannot collide
// with digests computed for any other purpose. ASCII, zero-padded.
var entryDomainKey = [32]byte{
	'c', 'o', 'u', 'r', 't', '.', 'h', 'i', 's', 't', 'o', 'r', 'y', '.',
	'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// digest computes the chain digest of e: H(prev || json(e without digest)).
func digest(e Entry) (string, error) {
	e.Digest = ""
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	hasher, err := blake3.NewKeyed(entryDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("blake3 keyed hasher: %w", err)
	}
	_, _ = hasher.Write([]byte(e.Prev))
	_, _ = hasher.Write(body)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyChain checks that every entry's digest matches its content and
// that each entry links to the one before it.
func VerifyChain(entries []Entry) error {
	for i, e := range entries {
		if i > 0 && e.Prev != entries[i-1].Digest {
			return fmt.Errorf("entry %d: chain broken after entry %d", e.Seq, entries[i-1].Seq)
		}
		want, err := digest(e)
		if err != nil {
			return fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		if want != e.Digest {
			return fmt.Errorf("entry %d: digest mismatch", e.Seq)
		}
	}
	return nil
}
