// Package supervisor runs the pipeline workers as independent poll loops
// under one daemon lock, with panic containment and a consecutive-failure
// budget per worker.
package supervisor
