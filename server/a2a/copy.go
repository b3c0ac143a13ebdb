package a2a

import (
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// Deep-copy helpers. Stores hand out copies on both Load and Save so callers
// can never mutate persisted state, and the merger never touches its input
// snapshot. Parts hold pointer fields, so element copies are explicit.

func copyMetadataMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyMetadataPtr(m *map[string]interface{}) *map[string]interface{} {
	if m == nil {
		return nil
	}
	out := copyMetadataMap(*m)
	return &out
}

func copyPart(p a2aSchema.Part) a2aSchema.Part {
	out := p
	if p.Type != nil {
		t := *p.Type
		out.Type = &t
	}
	if p.Text != nil {
		s := *p.Text
		out.Text = &s
	}
	if p.File != nil {
		f := *p.File
		if p.File.Name != nil {
			n := *p.File.Name
			f.Name = &n
		}
		if p.File.MimeType != nil {
			m := *p.File.MimeType
			f.MimeType = &m
		}
		if p.File.Bytes != nil {
			b := *p.File.Bytes
			f.Bytes = &b
		}
		if p.File.URI != nil {
			u := *p.File.URI
			f.URI = &u
		}
		out.File = &f
	}
	if p.Data != nil {
		d := copyMetadataMap(*p.Data)
		out.Data = &d
	}
	out.Metadata = copyMetadataPtr(p.Metadata)
	return out
}

func copyParts(parts []a2aSchema.Part) []a2aSchema.Part {
	if parts == nil {
		return nil
	}
	out := make([]a2aSchema.Part, len(parts))
	for i, p := range parts {
		out[i] = copyPart(p)
	}
	return out
}

func copyMessage(m a2aSchema.Message) a2aSchema.Message {
	out := m
	out.Parts = copyParts(m.Parts)
	out.Metadata = copyMetadataPtr(m.Metadata)
	return out
}

func copyMessagePtr(m *a2aSchema.Message) *a2aSchema.Message {
	if m == nil {
		return nil
	}
	out := copyMessage(*m)
	return &out
}

func copyMessages(msgs []a2aSchema.Message) []a2aSchema.Message {
	out := make([]a2aSchema.Message, len(msgs))
	for i, m := range msgs {
		out[i] = copyMessage(m)
	}
	return out
}

func copyArtifact(a a2aSchema.Artifact) a2aSchema.Artifact {
	out := a
	if a.Name != nil {
		n := *a.Name
		out.Name = &n
	}
	if a.Description != nil {
		d := *a.Description
		out.Description = &d
	}
	if a.Index != nil {
		i := *a.Index
		out.Index = &i
	}
	if a.Append != nil {
		ap := *a.Append
		out.Append = &ap
	}
	if a.LastChunk != nil {
		lc := *a.LastChunk
		out.LastChunk = &lc
	}
	out.Parts = copyParts(a.Parts)
	out.Metadata = copyMetadataPtr(a.Metadata)
	return out
}

func copyArtifacts(artifacts []a2aSchema.Artifact) []a2aSchema.Artifact {
	if artifacts == nil {
		return nil
	}
	out := make([]a2aSchema.Artifact, len(artifacts))
	for i, a := range artifacts {
		out[i] = copyArtifact(a)
	}
	return out
}

func copyStatus(s a2aSchema.TaskStatus) a2aSchema.TaskStatus {
	out := s
	out.Message = copyMessagePtr(s.Message)
	return out
}

func copyTask(t *a2aSchema.Task) *a2aSchema.Task {
	if t == nil {
		return nil
	}
	out := *t
	if t.SessionID != nil {
		sid := *t.SessionID
		out.SessionID = &sid
	}
	out.Status = copyStatus(t.Status)
	out.Artifacts = copyArtifacts(t.Artifacts)
	out.Metadata = copyMetadataMap(t.Metadata)
	return &out
}

func copyTaskAndHistory(data *TaskAndHistory) *TaskAndHistory {
	if data == nil {
		return nil
	}
	return &TaskAndHistory{
		Task:    copyTask(data.Task),
		History: copyMessages(data.History),
	}
}
