package conversation

import (
	"context"
	"errors"
)

// SimulatedTranscript is what Dictate returns when no transcriber is
// installed.
const SimulatedTranscript = "This is a simulated voice transcription."

// ErrSpeechUnsupported is returned by ReadAloud without a speaker. It is a
// notice for the user, not a failure of the conversation.
var ErrSpeechUnsupported = errors.New("conversation: text-to-speech is not supported here")

// Transcriber turns captured speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Dictate captures one utterance. The result is meant to prefill the
// user's input; it is not sent.
func (c *Controller) Dictate(ctx context.Context) (string, error) {
	if c.transcriber == nil {
		return SimulatedTranscript, nil
	}
	return c.transcriber.Transcribe(ctx)
}

// ReadAloud speaks the text of message id.
func (c *Controller) ReadAloud(ctx context.Context, id string) error {
	c.mu.Lock()
	msg, ok := c.log.Get(id)
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if c.speaker == nil {
		return ErrSpeechUnsupported
	}
	return c.speaker.Speak(ctx, msg.Text)
}
