package chainweb

// FeatureFlagsToSigned reinterprets an unsigned 64-bit featureFlags value as
// signed via two's-complement wrap, the canonical mapping prescribed by
// spec §6 and §9. The bit pattern is preserved exactly; only the
// interpretation changes.
func FeatureFlagsToSigned(u uint64) int64 {
	return int64(u)
}

// FeatureFlagsToUnsigned is the inverse of FeatureFlagsToSigned, needed by
// any downstream reader that must reconstruct the original unsigned wire
// value (spec §6: "any downstream read must perform the inverse").
func FeatureFlagsToUnsigned(i int64) uint64 {
	return uint64(i)
}
