package stream

import (
	"sort"
	"sync"

	"github.com/radiant-labs/uep/pkg/codec"
	"github.com/radiant-labs/uep/pkg/contracts"
)

// Assembler collects chunk bytes by sequence number and reassembles the
// full content once the stream completes. Chunks may arrive in any
// order; assembly concatenates them in sequence order.
type Assembler struct {
	mu     sync.Mutex
	chunks map[int64][]byte
	codec  *codec.Codec
}

// NewAssembler creates an assembler. The codec verifies the end-to-end
// hash announced at stream start; pass nil to skip verification.
func NewAssembler(c *codec.Codec) *Assembler {
	return &Assembler{chunks: make(map[int64][]byte), codec: c}
}

// Add stores one chunk's bytes under its sequence number. Re-adding a
// sequence overwrites, which is harmless because the manager already
// rejected the duplicate.
func (a *Assembler) Add(seq int64, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	a.chunks[seq] = buf
}

// Len returns the number of distinct sequences held.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

// Assemble concatenates all chunks in sequence order and, when an
// expected hash is present, verifies the result against it.
func (a *Assembler) Assemble(contentType string, expected *contracts.PayloadHash) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seqs := make([]int64, 0, len(a.chunks))
	total := 0
	for seq, data := range a.chunks {
		seqs = append(seqs, seq)
		total += len(data)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	out := make([]byte, 0, total)
	for _, seq := range seqs {
		out = append(out, a.chunks[seq]...)
	}

	if expected != nil && a.codec != nil {
		if err := a.codec.VerifyContent(contentType, out, expected); err != nil {
			return nil, err
		}
	}
	return out, nil
}
