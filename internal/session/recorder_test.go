package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	chunks chan []byte
	once   sync.Once
	closed bool
	mu     sync.Mutex
}

func newFakeStream(buffered ...[]byte) *fakeStream {
	s := &fakeStream{chunks: make(chan []byte, 64)}
	for _, b := range buffered {
		s.chunks <- b
	}
	return s
}

func (s *fakeStream) Next() ([]byte, error) {
	chunk, ok := <-s.chunks
	if !ok {
		return nil, io.EOF
	}
	return chunk, nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.chunks)
	})
	return nil
}

func (s *fakeStream) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDevice struct {
	err    error
	stream *fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	blob  []byte
	calls int
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.blob = append([]byte(nil), audio...)
	return f.text, f.err
}

func TestRecorder_PermissionDeniedStaysIdle(t *testing.T) {
	dev := &fakeDevice{err: ErrPermissionDenied}
	sess := New("s1", "doctor", 40)
	r := NewRecorder(dev, &fakeTranscriber{}, sess)

	err := r.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want ErrPermissionDenied", err)
	}
	if got := r.State(); got != RecordingIdle {
		t.Errorf("state = %q, want idle", got)
	}
	if got := len(sess.Turns()); got != 0 {
		t.Errorf("turn count = %d, want 0", got)
	}
}

type blockingDevice struct {
	entered chan struct{}
	release chan struct{}
	stream  *fakeStream

	mu    sync.Mutex
	opens int
}

func (d *blockingDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	d.opens++
	d.mu.Unlock()
	close(d.entered)
	<-d.release
	return d.stream, nil
}

func TestRecorder_StartIsExclusiveDuringOpen(t *testing.T) {
	dev := &blockingDevice{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		stream:  newFakeStream(),
	}
	r := NewRecorder(dev, &fakeTranscriber{}, New("s1", "doctor", 40))

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(context.Background()) }()

	select {
	case <-dev.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first Start never reached the device")
	}

	// The device slot is claimed while the open call is suspended, as it
	// is during a browser permission prompt.
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start error = %v, want ErrAlreadyRecording", err)
	}

	close(dev.release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	dev.mu.Lock()
	opens := dev.opens
	dev.mu.Unlock()
	if opens != 1 {
		t.Errorf("device opened %d times, want 1", opens)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorder_StartWhileRecording(t *testing.T) {
	dev := &fakeDevice{stream: newFakeStream()}
	r := NewRecorder(dev, &fakeTranscriber{}, New("s1", "doctor", 40))

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start error = %v, want ErrAlreadyRecording", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRecorder_StopWithoutStart(t *testing.T) {
	r := NewRecorder(&fakeDevice{stream: newFakeStream()}, &fakeTranscriber{}, New("s1", "doctor", 40))
	if err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop error = %v, want ErrNotRecording", err)
	}
}

func TestRecorder_CaptureTranscribeAppend(t *testing.T) {
	stream := newFakeStream([]byte("chunk-a"), []byte("chunk-b"))
	tr := &fakeTranscriber{text: "hello"}
	sess := New("s1", "doctor", 40)
	sess.SetInput("doctor says")
	r := NewRecorder(&fakeDevice{stream: stream}, tr, sess)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.State(); got != RecordingActive {
		t.Fatalf("state = %q, want recording", got)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !stream.wasClosed() {
		t.Error("device stream must be released on stop")
	}
	if !bytes.Equal(tr.blob, []byte("chunk-achunk-b")) {
		t.Errorf("transcribed blob = %q, want buffered chunks in order", tr.blob)
	}
	if got := sess.Input(); got != "doctor says hello" {
		t.Errorf("input = %q, want %q", got, "doctor says hello")
	}
	if got := r.State(); got != RecordingIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestRecorder_EmptyRecordingStillTranscribes(t *testing.T) {
	tr := &fakeTranscriber{text: ""}
	sess := New("s1", "doctor", 40)
	r := NewRecorder(&fakeDevice{stream: newFakeStream()}, tr, sess)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("empty-duration stop must not error: %v", err)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber calls = %d, want 1 even for an empty blob", tr.calls)
	}
	if len(tr.blob) != 0 {
		t.Errorf("blob = %q, want empty", tr.blob)
	}
	if got := sess.Input(); got != "" {
		t.Errorf("empty transcript must not touch the input, got %q", got)
	}
	if got := len(sess.Turns()); got != 0 {
		t.Errorf("turn count = %d, want 0", got)
	}
}

func TestRecorder_TranscriptionFailureResetsState(t *testing.T) {
	stream := newFakeStream([]byte("x"))
	tr := &fakeTranscriber{err: errors.New("status 502")}
	sess := New("s1", "doctor", 40)
	r := NewRecorder(&fakeDevice{stream: stream}, tr, sess)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(context.Background()); err == nil {
		t.Fatal("expected transcription error to surface")
	}
	if got := r.State(); got != RecordingIdle {
		t.Errorf("state = %q, want idle after failure", got)
	}
	if !stream.wasClosed() {
		t.Error("device stream must be released even when transcription fails")
	}
	if got := sess.Input(); got != "" {
		t.Errorf("input = %q, want untouched", got)
	}
}

func TestAppendTranscript_SpaceRule(t *testing.T) {
	sess := New("s1", "doctor", 40)

	sess.AppendTranscript("hello")
	if got := sess.Input(); got != "hello" {
		t.Errorf("input = %q, want %q (no leading space)", got, "hello")
	}

	sess.SetInput("doctor says")
	sess.AppendTranscript("hello")
	if got := sess.Input(); got != "doctor says hello" {
		t.Errorf("input = %q, want %q", got, "doctor says hello")
	}

	sess.AppendTranscript("")
	if got := sess.Input(); got != "doctor says hello" {
		t.Errorf("empty transcript must leave input alone, got %q", got)
	}
}

func TestUploadDevice_PushAndDrain(t *testing.T) {
	dev := NewUploadDevice()
	if err := dev.Push([]byte("early")); !errors.Is(err, ErrNotRecording) {
		t.Errorf("push before open error = %v, want ErrNotRecording", err)
	}

	stream, err := dev.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Push([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := dev.Push([]byte("b")); err != nil {
		t.Fatal(err)
	}
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}

	var got []byte
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "ab" {
		t.Errorf("drained %q, want %q", got, "ab")
	}

	if err := dev.Push([]byte("late")); !errors.Is(err, ErrNotRecording) {
		t.Errorf("push after close error = %v, want ErrNotRecording", err)
	}
	// Closing twice must be safe.
	if err := stream.Close(); err != nil {
		t.Errorf("second close error = %v", err)
	}
}
