package schema

// Artifact represents an output generated by a task, such as a file, text
// snippet, or structured data.
type Artifact struct {
	// Optional name for the artifact (e.g., filename).
	Name *string `json:"name,omitempty"`
	// Optional description of the artifact.
	Description *string `json:"description,omitempty"`
	// The content parts constituting the artifact.
	Parts []Part `json:"parts"`
	// Zero-based position used for streaming merges. Artifacts without an
	// index keep their insertion order and sort as index 0.
	Index *int `json:"index,omitempty"`
	// For streaming: if true, the update's parts are appended to the
	// artifact at the same index instead of replacing it.
	Append *bool `json:"append,omitempty"`
	// For streaming: if true, this is the final chunk for this artifact.
	LastChunk *bool `json:"lastChunk,omitempty"`
	// Optional metadata associated with the artifact.
	Metadata *map[string]interface{} `json:"metadata,omitempty"`
}

// IndexOrZero returns the artifact's index, treating a missing index as 0.
func (a *Artifact) IndexOrZero() int {
	if a == nil || a.Index == nil {
		return 0
	}
	return *a.Index
}
