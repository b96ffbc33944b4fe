package frame

import (
	"crypto/md5"
	"encoding/hex"
)

// Hash computes an MD5 over the per-row MD5 digests, in row order. Columns in
// exclude do not contribute, so load timestamps can be left out.
func (f *Frame) Hash(exclude ...string) string {
	skip := make(map[int]bool, len(exclude))
	for _, c := range exclude {
		if i := f.Index(c); i >= 0 {
			skip[i] = true
		}
	}
	total := md5.New()
	for i, c := range f.columns {
		if !skip[i] {
			total.Write([]byte(c))
			total.Write([]byte{0x1e})
		}
	}
	for _, row := range f.rows {
		h := md5.New()
		for i, v := range row {
			if skip[i] {
				continue
			}
			h.Write([]byte(KindOf(v).String()))
			h.Write([]byte{':'})
			h.Write([]byte(Format(v)))
			h.Write([]byte{0x1f})
		}
		total.Write(h.Sum(nil))
	}
	return hex.EncodeToString(total.Sum(nil))
}
