package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/greatowl/receptionist/internal/backend"
	"github.com/greatowl/receptionist/internal/cache"
	"github.com/greatowl/receptionist/internal/prompt"
	"github.com/greatowl/receptionist/internal/session"
)

// FallbackReply is sent in-band when the upstream fails mid-turn. The turn is
// not committed in that case.
const FallbackReply = "I’m having trouble reaching my system right now. Please try again shortly, or book a 30-minute call with our team."

// Completer is the upstream completion capability.
type Completer interface {
	Complete(ctx context.Context, messages []session.Message) (string, error)
	Stream(ctx context.Context, messages []session.Message, onFragment func(string) error) error
}

// TurnRecorder archives completed turns. Implementations must tolerate being
// called concurrently.
type TurnRecorder interface {
	Record(ctx context.Context, sessionID, userText, assistantText string) error
}

// TurnRequest is one incoming chat turn.
type TurnRequest struct {
	SessionID    string
	Message      string
	Name         string
	BusinessType string
}

// Orchestrator drives one request/response cycle: merge user info, check the
// keyword rules, assemble the prompt, relay the upstream reply and commit the
// turn exactly once after the stream completes.
type Orchestrator struct {
	store       *session.Store
	assembler   *prompt.Assembler
	rules       []prompt.Rule
	completer   Completer
	cache       *cache.Cache
	recorder    TurnRecorder
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	turnTimeout time.Duration
}

// NewOrchestrator wires an orchestrator. recorder may be nil.
func NewOrchestrator(store *session.Store, assembler *prompt.Assembler, rules []prompt.Rule, completer Completer, respCache *cache.Cache, recorder TurnRecorder, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter, turnTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:       store,
		assembler:   assembler,
		rules:       rules,
		completer:   completer,
		cache:       respCache,
		recorder:    recorder,
		logger:      logger,
		tracer:      tracer,
		meter:       meter,
		turnTimeout: turnTimeout,
	}
}

// StreamTurn executes one streamed turn, invoking emit for every reply
// fragment in upstream order. On upstream failure the fallback text is
// emitted instead and nothing is committed. An emit error means the caller
// went away: the turn is abandoned without commit and the error returned.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest, emit func(string) error) error {
	ctx, span := o.tracer.Start(ctx, "chat_turn")
	defer span.End()

	o.store.MergeUserInfo(req.SessionID, session.UserInfo{Name: req.Name, BusinessType: req.BusinessType})

	if canned := prompt.MatchRule(o.rules, req.Message); canned != "" {
		if err := emit(canned); err != nil {
			return err
		}
		o.commit(ctx, req, canned)
		return nil
	}

	messages := o.assemble(req)

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	var buf strings.Builder
	err := o.completer.Stream(ctx, messages, func(fragment string) error {
		if err := emit(fragment); err != nil {
			return err
		}
		buf.WriteString(fragment)
		return nil
	})
	if err != nil {
		if errors.Is(err, backend.ErrAborted) {
			o.logger.Info("turn abandoned by caller", "session_id", req.SessionID)
			return err
		}
		o.countFailure(ctx)
		o.logger.Error("upstream stream failed", "session_id", req.SessionID, "error", err)
		if emitErr := emit(FallbackReply); emitErr != nil {
			return emitErr
		}
		return nil
	}

	reply := strings.TrimSpace(buf.String())
	if reply == "" {
		o.logger.Warn("upstream stream produced no text", "session_id", req.SessionID)
		return nil
	}

	o.commit(ctx, req, reply)
	return nil
}

// CompleteTurn executes one non-streamed turn and returns the full reply.
// The response cache is consulted first; on a miss the upstream is called
// once and the result cached.
func (o *Orchestrator) CompleteTurn(ctx context.Context, req TurnRequest) (string, error) {
	ctx, span := o.tracer.Start(ctx, "chat_turn")
	defer span.End()

	o.store.MergeUserInfo(req.SessionID, session.UserInfo{Name: req.Name, BusinessType: req.BusinessType})

	if canned := prompt.MatchRule(o.rules, req.Message); canned != "" {
		o.commit(ctx, req, canned)
		return canned, nil
	}

	messages := o.assemble(req)

	cacheKey := cache.Key(messages)
	if cached, ok := o.cache.Get(cacheKey); ok {
		o.logger.Info("cache hit", "session_id", req.SessionID, "key", cacheKey[:16])
		o.commit(ctx, req, cached)
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	reply, err := o.completer.Complete(ctx, messages)
	if err != nil {
		o.countFailure(ctx)
		o.logger.Error("upstream completion failed", "session_id", req.SessionID, "error", err)
		return "", fmt.Errorf("upstream completion failed: %w", err)
	}

	o.cache.Put(cacheKey, reply)
	o.commit(ctx, req, reply)
	return reply, nil
}

func (o *Orchestrator) assemble(req TurnRequest) []session.Message {
	return o.assembler.Assemble(
		o.store.History(req.SessionID),
		o.store.UserInfo(req.SessionID),
		o.store.PendingQuestion(req.SessionID),
		req.Message,
	)
}

// commit is the single point that writes the finished turn: store first, then
// the best-effort archive, then the turn counter.
func (o *Orchestrator) commit(ctx context.Context, req TurnRequest, reply string) {
	o.store.CommitTurn(req.SessionID, req.Message, reply)

	if o.recorder != nil {
		go func() {
			if err := o.recorder.Record(context.Background(), req.SessionID, req.Message, reply); err != nil {
				o.logger.Warn("failed to archive turn", "session_id", req.SessionID, "error", err)
			}
		}()
	}

	counter, err := o.meter.Int64Counter("chat.turns", metric.WithDescription("Completed chat turns"))
	if err == nil {
		counter.Add(ctx, 1)
	}
}

func (o *Orchestrator) countFailure(ctx context.Context) {
	counter, err := o.meter.Int64Counter("chat.upstream_failures", metric.WithDescription("Upstream completion failures"))
	if err == nil {
		counter.Add(ctx, 1)
	}
}
