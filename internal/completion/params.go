package completion

// MergeParams merges generation-parameter layers in increasing priority:
// later layers overwrite identically-named keys from earlier ones. The merge
// is shallow — nested structures are replaced wholesale, never combined.
// Nil layers are skipped; the result is never nil.
func MergeParams(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
