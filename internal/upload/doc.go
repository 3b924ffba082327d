// Package upload delivers captured camera frames to the backend ingest API
// over HTTP multipart, with bounded concurrency and retry with exponential
// backoff.
package upload
