// Package planner turns a goal into task batches.
//
// The model is asked for one task per line in the form
//
//	description|priority|dependencyIds|toolName|path
//
// where only the first two fields are required. ParseTasks is tolerant: lines
// it cannot read are skipped, priorities are clamped to [0,1] and unreadable
// priorities default to 0.5. Dependencies may only point at earlier lines of
// the same batch (or at ids the caller declares known), so every parsed batch
// is acyclic.
package planner
