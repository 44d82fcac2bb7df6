package ferriself

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// ContentHash returns the hex blake3 digest of submitted source bytes. It is
// the natural key reruns match rows by, so it must stay stable across
// versions (and compatible with hashes already in the database).
func ContentHash(code []byte) string {
	sum := blake3.Sum256(code)
	return hex.EncodeToString(sum[:])
}
