package archive

import "github.com/customeros/mailvault/interfaces"

// OrderFolders arranges folder descriptors so every parent precedes its
// children, which lets paths resolve in a single pass. Source order is kept
// among siblings. Descriptors whose parent chain never resolves (orphans,
// cycles from a misbehaving source) are appended in arrival order rather
// than dropped.
func OrderFolders(descriptors []interfaces.FolderDescriptor) []interfaces.FolderDescriptor {
	known := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		known[d.ID] = true
	}

	placed := make(map[string]bool, len(descriptors))
	ordered := make([]interfaces.FolderDescriptor, 0, len(descriptors))
	pending := make([]interfaces.FolderDescriptor, len(descriptors))
	copy(pending, descriptors)

	// Each full sweep places at least one folder of a well-formed tree, so
	// len(descriptors) sweeps is enough for any input.
	for sweep := 0; sweep < len(descriptors) && len(pending) > 0; sweep++ {
		remaining := pending[:0:0]
		for _, d := range pending {
			if d.ParentID == "" || !known[d.ParentID] || placed[d.ParentID] {
				placed[d.ID] = true
				ordered = append(ordered, d)
			} else {
				remaining = append(remaining, d)
			}
		}
		if len(remaining) == len(pending) {
			break
		}
		pending = remaining
	}

	return append(ordered, pending...)
}
