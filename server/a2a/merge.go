package a2a

import (
	"sort"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// applyUpdateToTaskAndHistory merges one handler yield into a snapshot and
// returns a new snapshot. It is a pure function: the input pair is never
// mutated, so applying the same update to equal snapshots yields equal
// snapshots.
func applyUpdateToTaskAndHistory(current *TaskAndHistory, update YieldUpdate) *TaskAndHistory {
	next := copyTaskAndHistory(current)

	switch {
	case update.Status != nil:
		applyStatusUpdate(next, update.Status)
	case update.Artifact != nil:
		applyArtifactUpdate(next, update.Artifact)
	}
	return next
}

// applyStatusUpdate replaces the task status with the update's fields and a
// fresh timestamp. An agent-role message inside the update is appended to
// history; history is otherwise untouched.
func applyStatusUpdate(data *TaskAndHistory, status *a2aSchema.TaskStatus) {
	data.Task.Status = a2aSchema.TaskStatus{
		State:     status.State,
		Message:   copyMessagePtr(status.Message),
		Timestamp: a2aSchema.Now(),
	}
	if status.Message != nil && status.Message.Role == "agent" {
		data.History = append(data.History, copyMessage(*status.Message))
	}
}

// applyArtifactUpdate merges one artifact yield into the artifact list:
// positional append/replace when the index is in bounds, replace by name
// match, or append; indexed lists are kept sorted ascending.
func applyArtifactUpdate(data *TaskAndHistory, update *a2aSchema.Artifact) {
	artifacts := data.Task.Artifacts

	if update.Index != nil && *update.Index >= 0 && *update.Index < len(artifacts) {
		idx := *update.Index
		if update.Append != nil && *update.Append {
			merged := copyArtifact(artifacts[idx])
			merged.Parts = append(merged.Parts, copyParts(update.Parts)...)
			if update.Metadata != nil {
				merged.Metadata = mergeMetadata(merged.Metadata, update.Metadata)
			}
			if update.LastChunk != nil {
				lc := *update.LastChunk
				merged.LastChunk = &lc
			}
			if update.Description != nil {
				d := *update.Description
				merged.Description = &d
			}
			artifacts[idx] = merged
		} else {
			artifacts[idx] = copyArtifact(*update)
		}
		data.Task.Status.Timestamp = a2aSchema.Now()
		return
	}

	if update.Name != nil {
		for i := range artifacts {
			if artifacts[i].Name != nil && *artifacts[i].Name == *update.Name {
				artifacts[i] = copyArtifact(*update)
				data.Task.Status.Timestamp = a2aSchema.Now()
				return
			}
		}
	}

	artifacts = append(artifacts, copyArtifact(*update))
	if anyIndexed(artifacts) {
		sort.SliceStable(artifacts, func(i, j int) bool {
			return artifacts[i].IndexOrZero() < artifacts[j].IndexOrZero()
		})
	}
	data.Task.Artifacts = artifacts
	data.Task.Status.Timestamp = a2aSchema.Now()
}

func anyIndexed(artifacts []a2aSchema.Artifact) bool {
	for i := range artifacts {
		if artifacts[i].Index != nil {
			return true
		}
	}
	return false
}

// mergeMetadata overlays update entries onto base; update wins on conflicts.
func mergeMetadata(base, update *map[string]interface{}) *map[string]interface{} {
	if base == nil {
		return copyMetadataPtr(update)
	}
	merged := copyMetadataMap(*base)
	if update != nil {
		for k, v := range *update {
			merged[k] = v
		}
	}
	return &merged
}
