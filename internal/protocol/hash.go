package protocol

import (
	"hash/fnv"

	"github.com/vmihailenco/msgpack/v5"
)

// ScreenHash hashes a ScreenMsg's serialized form, so a connection-local
// GetScreen handler can detect "nothing changed since I last answered"
// without keeping the previous Screen value around (§4.4).
func ScreenHash(msg ScreenMsg) (uint64, error) {
	b, err := msgpack.Marshal(msg)
	if err != nil {
		return 0, err
	}
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64(), nil
}
