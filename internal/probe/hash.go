package probe

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// MultihashB58 decodes a CID string and returns its multihash in base58btc, the
// form the indexer lookup endpoint expects.
func MultihashB58(s string) (string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decode cid %q: %w", s, err)
	}
	return c.Hash().B58String(), nil
}
