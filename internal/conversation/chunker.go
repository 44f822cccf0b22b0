package conversation

// Chunker reassembles arbitrarily sized capture callbacks into
// fixed-size sample blocks. Pure accumulation, no I/O.
type Chunker struct {
	size  int
	block []float32
}

// NewChunker creates a Chunker emitting blocks of size samples.
func NewChunker(size int) *Chunker {
	return &Chunker{
		size:  size,
		block: make([]float32, 0, size),
	}
}

// Push appends samples and invokes emit once per completed block, in
// order. The emitted slice is only valid for the duration of the call.
func (c *Chunker) Push(samples []float32, emit func(block []float32)) {
	for len(samples) > 0 {
		n := copy(c.block[len(c.block):c.size], samples)
		c.block = c.block[:len(c.block)+n]
		samples = samples[n:]

		if len(c.block) == c.size {
			emit(c.block)
			c.block = c.block[:0]
		}
	}
}

// Reset discards any partially accumulated block.
func (c *Chunker) Reset() {
	c.block = c.block[:0]
}
