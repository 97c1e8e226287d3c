// Package core provides the foundational domain types shared by every part of
// the kernel. It defines:
//
//   - Tasks, their status machine and execution outcomes
//   - Reactive events produced by sensors
//   - Bus messages exchanged between peer agents
//   - Run status and run metadata for the shared agent state
//   - The tagged knowledge variant (text, task outcome, structured record)
//   - The error taxonomy (tool lookup, parameters, execution, service,
//     response timeout, planning)
//
// The package holds no orchestration logic. Graph queries live in package
// graph, scheduling in package scheduler and messaging in package bus.
package core
