package segments

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SpeakerSegment is one time-bounded span of dialogue attributed to a single
// speaker, as reported by diarization. Start and End are offsets in seconds
// from the beginning of the source asset.
type SpeakerSegment struct {
	SpeakerID string  `json:"speaker_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	// VoiceTag is the descriptor bucket inferred for the speaker
	// (e.g. "adult-male", "child"). It drives voice selection later.
	VoiceTag string `json:"voice_tag"`
	// Text is the source-language utterance spoken in this span.
	Text string `json:"text,omitempty"`
}

// TranslatedSegment extends a speaker segment with the source utterance and
// its translation.
type TranslatedSegment struct {
	SpeakerSegment
	SourceText     string `json:"source_text"`
	TranslatedText string `json:"translated_text"`
}

// SynthesizedSegment extends a translated segment with a reference to the
// generated audio artifact.
type SynthesizedSegment struct {
	TranslatedSegment
	AudioAsset string `json:"audio_asset"`
}

// Envelope is the structured payload shared between pipeline stages. Stages
// read and extend the envelope rather than maintaining separate state; the
// orchestrator persists it as JSON on the job record for diagnostics.
type Envelope struct {
	Speakers    []SpeakerSegment     `json:"speakers,omitempty"`
	Translated  []TranslatedSegment  `json:"translated,omitempty"`
	Synthesized []SynthesizedSegment `json:"synthesized,omitempty"`
}

// Encode serializes the envelope to JSON.
func (e *Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode segments envelope: %w", err)
	}
	return string(data), nil
}

// Parse deserializes an envelope from its JSON representation. An empty
// string yields an empty envelope.
func Parse(raw string) (Envelope, error) {
	var env Envelope
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return env, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return Envelope{}, fmt.Errorf("parse segments envelope: %w", err)
	}
	return env, nil
}

// SortSpeakers orders segments by ascending start offset in place, breaking
// ties by speaker id for stable output.
func SortSpeakers(segs []SpeakerSegment) {
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].Start != segs[j].Start {
			return segs[i].Start < segs[j].Start
		}
		return segs[i].SpeakerID < segs[j].SpeakerID
	})
}

// SortSynthesized orders synthesized segments by ascending start offset in
// place. Resync alignment depends on this ordering.
func SortSynthesized(segs []SynthesizedSegment) {
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].Start != segs[j].Start {
			return segs[i].Start < segs[j].Start
		}
		return segs[i].SpeakerID < segs[j].SpeakerID
	})
}

// Validate reports whether the speaker segments are well formed: non-empty,
// unique speaker-id/start pairs, and non-negative spans.
func Validate(segs []SpeakerSegment) error {
	if len(segs) == 0 {
		return fmt.Errorf("no speaker segments")
	}
	seen := make(map[string]struct{}, len(segs))
	for _, seg := range segs {
		if strings.TrimSpace(seg.SpeakerID) == "" {
			return fmt.Errorf("segment at %.2fs missing speaker id", seg.Start)
		}
		if seg.End < seg.Start {
			return fmt.Errorf("segment %s has negative span (%.2f > %.2f)", seg.SpeakerID, seg.Start, seg.End)
		}
		key := fmt.Sprintf("%s@%.3f", seg.SpeakerID, seg.Start)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate segment %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
