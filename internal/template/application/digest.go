package application

import (
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/NaruseNia/progest/internal/template/domain"
)

// Digest hashes the template tree with BLAKE3. Only paths, the kind of each
// entry, the executable bit and file contents contribute, so the same tree
// hashes identically whether it comes from disk or from the embedded set.
func Digest(entries []domain.Entry) string {
	sorted := make([]domain.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := blake3.New()
	var n [8]byte
	for _, e := range sorted {
		kind := byte('f')
		if e.IsDir {
			kind = 'd'
		} else if e.Mode.Perm()&0o111 != 0 {
			kind = 'x'
		}
		_, _ = h.Write([]byte(e.Path))
		_, _ = h.Write([]byte{0, kind})
		binary.BigEndian.PutUint64(n[:], uint64(len(e.Content)))
		_, _ = h.Write(n[:])
		_, _ = h.Write(e.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
