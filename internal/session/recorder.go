package session

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
)

// RecordingState tracks the microphone capture machine. It is independent
// of the dispatch machine; the two communicate only through the pending
// input text.
type RecordingState string

const (
	RecordingIdle   RecordingState = "idle"
	RecordingActive RecordingState = "recording"
	Transcribing    RecordingState = "transcribing"

	// recordingStarting claims the device slot while Open is still in
	// flight, so a concurrent Start cannot slip past the guard during a
	// permission prompt.
	recordingStarting RecordingState = "starting"
)

var (
	// ErrPermissionDenied is returned by devices when microphone access is
	// refused or no device exists. The failed attempt is terminal.
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

// Device abstracts the microphone. Opening it may prompt for permission.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields buffered audio chunks. Next blocks until a chunk arrives
// and returns io.EOF (or any error) once the stream ends. Close releases
// the underlying device and must be safe to call more than once.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// Transcriber turns a finished audio blob into text. Empty text is a valid
// result, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TranscriptSink receives recognized text; the session implements it.
type TranscriptSink interface {
	AppendTranscript(text string)
}

// Recorder drives one exclusive microphone capture at a time: acquire the
// device, buffer chunks in order, and on stop hand the finished blob to the
// transcriber. The device is always released when recording ends, whether
// stopped by the user or by an error.
type Recorder struct {
	device      Device
	transcriber Transcriber
	sink        TranscriptSink

	mu     sync.Mutex
	state  RecordingState
	stream Stream
	chunks [][]byte
	done   chan struct{}
}

func NewRecorder(device Device, transcriber Transcriber, sink TranscriptSink) *Recorder {
	return &Recorder{
		device:      device,
		transcriber: transcriber,
		sink:        sink,
		state:       RecordingIdle,
	}
}

func (r *Recorder) State() RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires the device and begins buffering chunks. A refusal leaves
// the recorder idle; there is no retry.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != RecordingIdle {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.state = recordingStarting
	r.mu.Unlock()

	stream, err := r.device.Open(ctx)
	if err != nil {
		log.Printf("[voice] microphone open failed: %v", err)
		r.mu.Lock()
		r.state = RecordingIdle
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.state = RecordingActive
	r.stream = stream
	r.chunks = nil
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.collect(stream, done)
	return nil
}

func (r *Recorder) collect(stream Stream, done chan struct{}) {
	defer close(done)
	defer stream.Close() // release the device even if the stream errors out
	for {
		chunk, err := stream.Next()
		if err != nil {
			return
		}
		if len(chunk) == 0 {
			continue
		}
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
	}
}

// Stop finalizes the buffered chunks into one blob, releases the device,
// and runs transcription. A zero-chunk recording still transcribes an
// empty blob. Whatever the transcription outcome, the recorder ends idle.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != RecordingActive {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.state = Transcribing
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	_ = stream.Close()
	<-done

	r.mu.Lock()
	blob := bytes.Join(r.chunks, nil)
	r.chunks = nil
	r.stream = nil
	r.mu.Unlock()

	text, err := r.transcriber.Transcribe(ctx, blob)

	r.mu.Lock()
	r.state = RecordingIdle
	r.mu.Unlock()

	if err != nil {
		// Abandon the attempt; no text reaches the input buffer.
		log.Printf("[voice] transcription failed: %v", err)
		return err
	}
	if text != "" {
		r.sink.AppendTranscript(text)
	}
	return nil
}
