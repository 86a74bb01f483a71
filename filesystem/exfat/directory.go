package exfat

// Directory represents a single directory in an exFAT filesystem
type Directory struct {
	directoryEntry
	entries []*directoryEntry
}

// find looks a child up by name, case-insensitively through the volume's
// up-case table. The returned entry keeps its stored case.
func (d *Directory) find(name string, upcase *upcaseTable) *directoryEntry {
	for _, entry := range d.entries {
		if upcase.equalFold(entry.filename, name) {
			return entry
		}
	}
	return nil
}
