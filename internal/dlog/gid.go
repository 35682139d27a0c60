package dlog

import (
	"encoding/binary"
	"encoding/hex"

	"crypto/sha256"
)

// deriveRootGid mints a fresh gid for a root entry (no parents): a
// hex-encoded hash of the creator's identity and the clock time it
// was minted at, so independently created roots do not collide.
func deriveRootGid(creator []byte, time uint64) string {
	h := sha256.New()
	h.Write(creator)
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], time)
	h.Write(tb[:])
	return hex.EncodeToString(h.Sum(nil))[:32]
}
