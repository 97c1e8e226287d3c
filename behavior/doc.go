// Package behavior runs independently paced loops against one shared agent
// state.
//
// A Group starts every Loop in its own goroutine. Each loop repeats
// body -> sleep(interval) until the owner's stop signal is raised or the
// context ends; the body in flight always completes. The Proactive type
// supplies the three standard bodies: goal pursuit, opportunity scanning and
// prediction.
package behavior
