package book

// Distribute partitions an ordered chunk list across n workers by
// round robin: the chunk at list position i goes to worker i mod n.
//
// Round robin scatters any one worker's losses thinly across the whole
// range instead of leaving a contiguous gap, so a failed worker costs
// roughly 1/n of the total, evenly interleaved. The function is pure
// and deterministic: the same (chunks, n) always yields the same
// partition, which is what makes resumed runs reproducible.
//
// Worker slots are 0-based; operator-facing worker IDs add one.
func Distribute(chunks []Chunk, n int) [][]Chunk {
	if n < 1 {
		n = 1
	}

	assignments := make([][]Chunk, n)
	per := len(chunks)/n + 1
	for w := range assignments {
		assignments[w] = make([]Chunk, 0, per)
	}

	for i, c := range chunks {
		w := i % n
		assignments[w] = append(assignments[w], c)
	}

	return assignments
}
