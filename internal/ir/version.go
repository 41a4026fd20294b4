package ir

// Version constants for the stored format and the library.
const (
	// FormatVersion is the stored entity format version.
	FormatVersion = "1"

	// Version is the dbsync library version.
	Version = "0.1.0"
)
