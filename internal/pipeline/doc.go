// Package pipeline is the composition root for per-tile processing.
//
// For every input tile, in order, it extracts and scales the working bands,
// builds the SCL validity mask, derives the index bands, applies the mask to
// every band and builds the export descriptor. Tiles are independent, so
// they are processed concurrently; results are collected by input index,
// never by completion order.
//
// A failing tile is reported in Result.Failures with its index and id and
// does not affect its siblings. Only context cancellation aborts a run.
package pipeline
