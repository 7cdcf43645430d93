// Package workflow drives dubbing jobs through the pipeline.
//
// A worker pool claims pending jobs from the store and runs each one through
// diarization, translation, synthesis, and resync in order. Every stage
// transition is persisted and appended to the job's log before the next
// stage executes, so a crash never leaves a job claiming progress it did not
// make. Jobs found running at startup are failed; a job is resubmitted as a
// new job, never resumed.
package workflow
