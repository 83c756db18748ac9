package shared

// Entry is one staged (path, digest) pair. The same list shape is used by
// the staging index and by a commit's file list, so order is significant
// and a path may appear more than once.
type Entry struct {
	Path   string `json:"path"`
	Digest string `json:"hash"`
}
