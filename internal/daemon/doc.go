// Package daemon coordinates the long-running dubber process.
//
// It wires configuration, the job store, the workflow manager, and the HTTP
// API into a single lifecycle with flock-based locking to prevent multiple
// instances. The API accepts job submissions, serves status and log queries,
// issues presigned upload URLs, and redirects output downloads.
//
// Keep orchestration logic in internal/workflow and stage behavior in the
// stage packages; the daemon focuses on startup, shutdown, and the request
// surface.
package daemon
