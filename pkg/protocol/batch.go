package protocol

// FileInfo describes one uploaded transcript file.
type FileInfo struct {
	Name string  `json:"name"`
	URL  string  `json:"url"`
	Size float64 `json:"size"`
}

// UploadBatch is the response body of the transcript upload endpoint.
type UploadBatch struct {
	Bucket string     `json:"bucket"`
	Files  []FileInfo `json:"files"`
}

// FileName returns the name ticket operations should target. Generation
// is keyed by a single file, so the association is made explicit here
// rather than left to positional access at every call site.
func (b *UploadBatch) FileName() (string, bool) {
	if b == nil || len(b.Files) == 0 {
		return "", false
	}
	return b.Files[0].Name, true
}
