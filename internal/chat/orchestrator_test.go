package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/greatowl/receptionist/internal/backend"
	"github.com/greatowl/receptionist/internal/cache"
	"github.com/greatowl/receptionist/internal/prompt"
	"github.com/greatowl/receptionist/internal/session"
)

// fakeCompleter replays scripted fragments and can fail partway through.
type fakeCompleter struct {
	fragments []string
	failAfter int // fail after this many fragments; -1 means never
	reply     string
	err       error
	calls     int
	lastMsgs  []session.Message
}

func (f *fakeCompleter) Stream(ctx context.Context, messages []session.Message, onFragment func(string) error) error {
	f.calls++
	f.lastMsgs = messages
	for i, frag := range f.fragments {
		if f.failAfter >= 0 && i == f.failAfter {
			return errors.New("upstream exploded")
		}
		if err := onFragment(frag); err != nil {
			return fmt.Errorf("%w: %v", backend.ErrAborted, err)
		}
	}
	if f.failAfter >= 0 && f.failAfter >= len(f.fragments) {
		return errors.New("upstream exploded")
	}
	return nil
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []session.Message) (string, error) {
	f.calls++
	f.lastMsgs = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestOrchestrator(c Completer, store *session.Store) *Orchestrator {
	return NewOrchestrator(store, prompt.NewAssembler(), prompt.DefaultRules(), c, cache.New(), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracenoop.NewTracerProvider().Tracer("test"),
		noop.NewMeterProvider().Meter("test"),
		5*time.Second)
}

func TestStreamTurnRelaysAndCommits(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"Hel", "lo", "!"}, failAfter: -1}
	o := newTestOrchestrator(fake, store)

	var got []string
	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", "!"}, got)

	hist := store.History("s1")
	require.Len(t, hist, 2)
	assert.Equal(t, "hi there", hist[0].Content)
	assert.Equal(t, "Hello!", hist[1].Content)
}

func TestStreamTurnFailureBeforeAnyFragment(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{failAfter: 0}
	o := newTestOrchestrator(fake, store)

	var got []string
	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{FallbackReply}, got)
	assert.Empty(t, store.History("s1"), "failed turn must not pollute memory")
}

func TestStreamTurnFailureMidStream(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"par", "tial"}, failAfter: 2}
	o := newTestOrchestrator(fake, store)

	var got []string
	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"par", "tial", FallbackReply}, got)
	assert.Empty(t, store.History("s1"))
}

func TestStreamTurnCallerDisconnect(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"one", "two"}, failAfter: -1}
	o := newTestOrchestrator(fake, store)

	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"}, func(s string) error {
		return errors.New("broken pipe")
	})
	require.ErrorIs(t, err, backend.ErrAborted)
	assert.Empty(t, store.History("s1"))
}

func TestStreamTurnEmptyReplySkipsCommit(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"  ", "\n"}, failAfter: -1}
	o := newTestOrchestrator(fake, store)

	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"}, func(string) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, store.History("s1"))
}

func TestStreamTurnKeywordRuleSkipsUpstream(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"never"}, failAfter: -1}
	o := newTestOrchestrator(fake, store)

	var got []string
	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "what are your hours?"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Monday")
	assert.Zero(t, fake.calls)

	hist := store.History("s1")
	require.Len(t, hist, 2)
	assert.Equal(t, got[0], hist[1].Content)
}

func TestStreamTurnMergesUserInfoAndPersonalizes(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"Hi Ana!"}, failAfter: -1}
	o := newTestOrchestrator(fake, store)

	err := o.StreamTurn(context.Background(), TurnRequest{
		SessionID: "s1", Message: "hi there", Name: "Ana", BusinessType: "roofing",
	}, func(string) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, "Ana", store.UserInfo("s1").Name)
	require.GreaterOrEqual(t, len(fake.lastMsgs), 2)
	assert.Contains(t, fake.lastMsgs[1].Content, "Ana")
}

func TestStreamTurnContinuationAfterQuestion(t *testing.T) {
	store := session.NewStore(0)
	store.CommitTurn("s1", "tell me more", "Want a demo of our chatbots?")

	fake := &fakeCompleter{fragments: []string{"Great, here is the demo."}, failAfter: -1}
	o := newTestOrchestrator(fake, store)

	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "yes"}, func(string) error { return nil })
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(fake.lastMsgs), 2)
	assert.Contains(t, fake.lastMsgs[1].Content, "Want a demo of our chatbots?")
}

func TestCompleteTurnCachesAcrossSessions(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{reply: "We offer AI receptionists."}
	o := newTestOrchestrator(fake, store)

	reply1, err := o.CompleteTurn(context.Background(), TurnRequest{SessionID: "a", Message: "what do you sell"})
	require.NoError(t, err)
	reply2, err := o.CompleteTurn(context.Background(), TurnRequest{SessionID: "b", Message: "what do you sell"})
	require.NoError(t, err)

	assert.Equal(t, reply1, reply2)
	assert.Equal(t, 1, fake.calls, "second identical prompt should be served from cache")
	assert.Len(t, store.History("b"), 2)
}

func TestCompleteTurnUpstreamError(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{err: errors.New("boom")}
	o := newTestOrchestrator(fake, store)

	_, err := o.CompleteTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"})
	require.Error(t, err)
	assert.Empty(t, store.History("s1"))
}

// recorderChan lets tests wait for the asynchronous archive write.
type recorderChan chan [3]string

func (r recorderChan) Record(_ context.Context, sessionID, userText, reply string) error {
	r <- [3]string{sessionID, userText, reply}
	return nil
}

func TestCommittedTurnIsArchived(t *testing.T) {
	store := session.NewStore(0)
	fake := &fakeCompleter{fragments: []string{"done"}, failAfter: -1}
	rec := make(recorderChan, 1)

	o := NewOrchestrator(store, prompt.NewAssembler(), nil, fake, cache.New(), rec,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracenoop.NewTracerProvider().Tracer("test"),
		noop.NewMeterProvider().Meter("test"),
		time.Second)

	err := o.StreamTurn(context.Background(), TurnRequest{SessionID: "s1", Message: "hi there"}, func(string) error { return nil })
	require.NoError(t, err)

	select {
	case got := <-rec:
		assert.Equal(t, [3]string{"s1", "hi there", "done"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("turn was never archived")
	}
}
