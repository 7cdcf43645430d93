// Package segments defines the structured payload shared between pipeline
// stages: speaker spans from diarization, their translations, and the
// synthesized audio artifacts derived from them. Stages extend the envelope
// as the job progresses; it is persisted on the job record as JSON so a
// failed job can be diagnosed from its last known pipeline state.
package segments
