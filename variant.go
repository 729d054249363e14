package stratify

// callVariants compares an individual's genome against the reference, byte
// by byte, and returns one marker per position: 0 where the bases match, 1
// where they differ. This is a deliberately naive model -- any byte
// difference counts as a variant, with no notion of allele, quality, or
// indels. Both buffers must be the same length; the caller enforces that
// before we get here.
func callVariants(ref, indiv []byte) []float64 {
	variants := make([]float64, len(ref))
	for i, b := range ref {
		if b != indiv[i] {
			variants[i] = 1
		}
	}
	return variants
}
