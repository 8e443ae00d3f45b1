package shared

// Versioned carries the optimistic-lock version of a mutable record.
// Repositories compare-and-swap on it: an update only applies when the stored
// version still equals the version that was read.
type Versioned struct {
	Version int
}

// GetVersion returns the version read from storage
func (v *Versioned) GetVersion() int {
	return v.Version
}

// NextVersion returns the version the record will carry after the next write
func (v *Versioned) NextVersion() int {
	return v.Version + 1
}
