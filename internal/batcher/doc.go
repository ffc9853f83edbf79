// Package batcher implements the batch worker: it claims ready markers from
// 02_ready into numbered batch directories under 03_processing, sized by
// cumulative page count, and submits each batch to the external scheduler.
package batcher
