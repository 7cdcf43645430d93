package diarize

import (
	"context"
	"fmt"

	"dubber/internal/queue"
	"dubber/internal/segments"
)

// ScriptedTranscripts is the default transcript source. The hosted
// diarization model reports speaker turns but not their words, so each
// segment gets a deterministic placeholder line until a speech-to-text
// source is wired in ahead of it.
type ScriptedTranscripts struct{}

var scriptLines = []string{
	"Hello! Welcome to our presentation today.",
	"Thank you for having me, it's great to be here.",
	"Let's begin with the first topic on our agenda.",
	"I think that's an excellent starting point.",
	"Could you elaborate on that a little more?",
	"Of course, let me give you a concrete example.",
	"That makes a lot of sense when you put it that way.",
	"Moving on, there is one more thing worth covering.",
}

// Transcript returns one utterance per speaker segment.
func (ScriptedTranscripts) Transcript(ctx context.Context, job *queue.Job, speakers []segments.SpeakerSegment) ([]string, error) {
	lines := make([]string, len(speakers))
	for i := range speakers {
		lines[i] = scriptLines[i%len(scriptLines)]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no segments to transcribe for job %s", job.ID)
	}
	return lines, nil
}
