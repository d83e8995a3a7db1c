// Package consumer is the viewer end of the pipeline. It accepts the relay's
// downstream connection, keeps only the most recent frame, and serves it over
// HTTP for browser views.
package consumer
