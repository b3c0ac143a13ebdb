package shared

import a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"

// A2AStreamEvent holds data for one A2A SSE event, used internally between
// the task engine and the transport. Exactly one of Status/Artifact is set.
type A2AStreamEvent struct {
	// Status contains the status update event data, if this is a status event.
	Status *a2aSchema.TaskStatusUpdateEvent
	// Artifact contains the artifact update event data, if this is an artifact event.
	Artifact *a2aSchema.TaskArtifactUpdateEvent
	// Final indicates this is the last event of the stream.
	Final bool
}
