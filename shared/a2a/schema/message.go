package schema

// FileContent represents file data, either as inline bytes or a URI reference.
type FileContent struct {
	// Optional filename.
	Name *string `json:"name,omitempty"`
	// Optional MIME type of the file content.
	MimeType *string `json:"mimeType,omitempty"`
	// Base64 encoded file content. Mutually exclusive with URI.
	Bytes *string `json:"bytes,omitempty"`
	// URI pointing to the file content. Mutually exclusive with Bytes.
	URI *string `json:"uri,omitempty"`
}

// Part is the smallest content unit inside a message or artifact.
// It is a tagged union over text, file and data; exactly one of the payload
// fields should be set. Some clients omit the type tag, so consumers key off
// the populated payload field rather than Type alone.
type Part struct {
	Type     *string                 `json:"type,omitempty"` // "text", "file" or "data"
	Text     *string                 `json:"text,omitempty"`
	File     *FileContent            `json:"file,omitempty"`
	Data     *map[string]interface{} `json:"data,omitempty"`
	Metadata *map[string]interface{} `json:"metadata,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	t := "text"
	return Part{Type: &t, Text: &text}
}

// FilePart builds a file part from inline content.
func FilePart(file FileContent) Part {
	t := "file"
	return Part{Type: &t, File: &file}
}

// DataPart builds a structured-data part.
func DataPart(data map[string]interface{}) Part {
	t := "data"
	return Part{Type: &t, Data: &data}
}

// Message represents a unit of communication between a user/client and an agent.
type Message struct {
	// Role of the sender, "user" or "agent".
	Role string `json:"role"`
	// The content parts of the message.
	Parts []Part `json:"parts"`
	// Optional metadata associated with the entire message.
	Metadata *map[string]interface{} `json:"metadata,omitempty"`
}

// AgentTextMessage builds an agent-role message holding a single text part.
func AgentTextMessage(text string) *Message {
	return &Message{Role: "agent", Parts: []Part{TextPart(text)}}
}
