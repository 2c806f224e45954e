package digest

import "encoding/hex"

// Sums holds one finalized digest per computed algorithm.
type Sums struct {
	sums [numAlgorithms][]byte
}

// Get returns the digest for a, or nil if it was not computed.
func (s *Sums) Get(a Algorithm) []byte {
	if !a.valid() {
		return nil
	}
	return s.sums[a.index()]
}

// Hex returns the hex-encoded digest for a.
func (s *Sums) Hex(a Algorithm) string {
	return hex.EncodeToString(s.Get(a))
}

func (s *Sums) set(a Algorithm, sum []byte) {
	s.sums[a.index()] = sum
}
