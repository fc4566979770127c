package stream

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/radiant-labs/uep/pkg/contracts"
)

// DefaultIdleTimeout is how long an active stream may go without a
// chunk before the sweeper fails it.
const DefaultIdleTimeout = 10 * time.Minute

const lockStripes = 64

// Ack is the manager's answer to an accepted stream envelope. For
// resumable streams each chunk ack carries a fresh resume token.
// Progress is bytesTransferred/bytesTotal, recomputed on every accepted
// envelope; it is nil (indeterminate) when no total size was announced.
type Ack struct {
	StreamID    string
	Sequence    int64
	Offset      int64
	Progress    *float64
	Phase       Phase
	ResumeToken string
}

// Manager drives the chunked-stream state machine. It is safe for
// concurrent use; operations on the same stream serialize on a striped
// lock, and the state store's revision check catches cross-process
// races.
type Manager struct {
	store       StateStore
	tokens      *TokenIssuer
	clock       func() time.Time
	idleTimeout time.Duration
	logger      *slog.Logger

	chunkRate  rate.Limit
	chunkBurst int
	limiters   sync.Map // stream key -> *rate.Limiter
	fetchCtxs  sync.Map // stream key -> *fetchScope

	locks [lockStripes]sync.Mutex
}

type fetchScope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source for deterministic tests.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithIdleTimeout sets the inactivity window after which Sweep fails a
// stream.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithChunkRate caps per-stream chunk throughput. Zero disables the
// limiter.
func WithChunkRate(perSecond float64, burst int) ManagerOption {
	return func(m *Manager) {
		m.chunkRate = rate.Limit(perSecond)
		m.chunkBurst = burst
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a stream manager over the given state store and
// resume-token issuer.
func NewManager(store StateStore, tokens *TokenIssuer, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		tokens:      tokens,
		clock:       time.Now,
		idleTimeout: DefaultIdleTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lock(tenantID, streamID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(stateKey(tenantID, streamID))) //nolint:errcheck
	return &m.locks[h.Sum32()%lockStripes]
}

func streamingOf(env *contracts.Envelope) (*contracts.StreamingInfo, error) {
	if env.Streaming == nil {
		return nil, streamErr(CodeInvalidTransition, "", "envelope type %s carries no streaming info", env.Type)
	}
	return env.Streaming, nil
}

// Start opens a stream from a stream.start envelope. The payload shell
// supplies the content type, expected size, and optional end-to-end
// hash for verification at reassembly.
func (m *Manager) Start(ctx context.Context, env *contracts.Envelope) (*Ack, error) {
	info, err := streamingOf(env)
	if err != nil {
		return nil, err
	}
	tenant := env.TenantID()

	mu := m.lock(tenant, info.StreamID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := m.store.Get(ctx, tenant, info.StreamID); err == nil {
		return nil, streamErr(CodeDuplicateStream, info.StreamID, "stream already started")
	} else if !errors.Is(err, ErrStateNotFound) {
		return nil, err
	}

	now := m.clock().UTC()
	st := &State{
		TenantID:         tenant,
		StreamID:         info.StreamID,
		ContentType:      env.Payload.ContentType,
		Phase:            PhaseActive,
		LastSequence:     info.Sequence.Current,
		ExpectedTotal:    info.Sequence.Total,
		RequiresOrdering: info.RequiresOrdering,
		Resumable:        info.Resumable,
		Hash:             env.Payload.Hash,
		Seen:             map[int64]bool{info.Sequence.Current: true},
		StartedAt:        now,
		UpdatedAt:        now,
	}
	if env.Payload.SizeBytes != nil {
		bytes := *env.Payload.SizeBytes
		st.ExpectedBytes = &bytes
	}
	if err := m.store.Put(ctx, st, 0); err != nil {
		return nil, m.storeErr(info.StreamID, err)
	}

	m.logger.InfoContext(ctx, "stream started",
		slog.String("stream_id", info.StreamID),
		slog.String("tenant_id", tenant),
		slog.String("content_type", st.ContentType))
	return m.ack(st)
}

// Chunk records one stream.chunk envelope carrying data bytes. A
// duplicate sequence is rejected; a gap is rejected when the stream
// requires ordering. Rejections leave the stream active so the
// producer can retransmit.
func (m *Manager) Chunk(ctx context.Context, env *contracts.Envelope, data []byte) (*Ack, error) {
	info, err := streamingOf(env)
	if err != nil {
		return nil, err
	}
	tenant := env.TenantID()

	mu := m.lock(tenant, info.StreamID)
	mu.Lock()
	defer mu.Unlock()

	st, err := m.loadActive(ctx, tenant, info.StreamID)
	if err != nil {
		return nil, err
	}
	if !m.allowChunk(tenant, info.StreamID) {
		return nil, streamErr(CodeRateLimited, info.StreamID, "chunk rate limit exceeded")
	}

	seq := info.Sequence.Current
	if st.Seen[seq] || seq <= 0 {
		return nil, streamErr(CodeDuplicateSequence, info.StreamID, "sequence %d already received", seq)
	}
	if st.RequiresOrdering && seq != st.LastSequence+1 {
		return nil, streamErr(CodeSequenceGap, info.StreamID,
			"sequence %d arrived after %d on an ordered stream", seq, st.LastSequence)
	}
	if st.ExpectedTotal != nil && seq > *st.ExpectedTotal {
		return nil, streamErr(CodeSequenceGap, info.StreamID,
			"sequence %d exceeds announced total %d", seq, *st.ExpectedTotal)
	}

	rev := st.Revision
	st.Seen[seq] = true
	if seq > st.LastSequence {
		st.LastSequence = seq
	}
	st.Offset += int64(len(data))
	if info.Sequence.Total != nil {
		st.ExpectedTotal = info.Sequence.Total
	}
	st.UpdatedAt = m.clock().UTC()

	if err := m.store.Put(ctx, st, rev); err != nil {
		return nil, m.storeErr(info.StreamID, err)
	}
	return m.ack(st)
}

// End closes a stream from a stream.end envelope. The final sequence
// must carry isLast with a known total, and every sequence from 1 to
// that total must have been received.
func (m *Manager) End(ctx context.Context, env *contracts.Envelope) (*Ack, error) {
	info, err := streamingOf(env)
	if err != nil {
		return nil, err
	}
	tenant := env.TenantID()

	mu := m.lock(tenant, info.StreamID)
	mu.Lock()
	defer mu.Unlock()

	st, err := m.loadActive(ctx, tenant, info.StreamID)
	if err != nil {
		return nil, err
	}

	seq := info.Sequence.Current
	if !info.Sequence.IsLast || info.Sequence.Total == nil {
		return nil, streamErr(CodeInvalidTransition, info.StreamID,
			"stream.end must carry isLast with a known total")
	}
	total := *info.Sequence.Total
	if seq != total {
		return nil, streamErr(CodeInvalidTransition, info.StreamID,
			"final sequence %d does not match total %d", seq, total)
	}
	if st.Seen[seq] {
		return nil, streamErr(CodeDuplicateSequence, info.StreamID, "sequence %d already received", seq)
	}
	if int64(len(st.Seen))+1 != total {
		return nil, streamErr(CodeIncomplete, info.StreamID,
			"received %d of %d sequences", len(st.Seen)+1, total)
	}

	rev := st.Revision
	st.Seen[seq] = true
	st.LastSequence = seq
	st.ExpectedTotal = &total
	st.Phase = PhaseCompleted
	st.UpdatedAt = m.clock().UTC()

	if err := m.store.Put(ctx, st, rev); err != nil {
		return nil, m.storeErr(info.StreamID, err)
	}
	m.limiters.Delete(stateKey(tenant, info.StreamID))
	m.cancelFetches(tenant, info.StreamID)

	m.logger.InfoContext(ctx, "stream completed",
		slog.String("stream_id", info.StreamID),
		slog.String("tenant_id", tenant),
		slog.Int64("sequences", total),
		slog.Int64("bytes", st.Offset))
	return m.ack(st)
}

// Fail moves a stream to the failed phase with a reason. Failing an
// already terminal stream is an invalid transition.
func (m *Manager) Fail(ctx context.Context, tenantID, streamID, reason string) error {
	return m.terminate(ctx, tenantID, streamID, PhaseFailed, reason)
}

// Cancel moves a stream to the cancelled phase. Only non-terminal
// streams may be cancelled.
func (m *Manager) Cancel(ctx context.Context, tenantID, streamID string) error {
	return m.terminate(ctx, tenantID, streamID, PhaseCancelled, "cancelled by producer")
}

func (m *Manager) terminate(ctx context.Context, tenantID, streamID string, phase Phase, reason string) error {
	mu := m.lock(tenantID, streamID)
	mu.Lock()
	defer mu.Unlock()

	st, err := m.loadActive(ctx, tenantID, streamID)
	if err != nil {
		return err
	}
	rev := st.Revision
	st.Phase = phase
	st.FailureReason = reason
	st.UpdatedAt = m.clock().UTC()
	if err := m.store.Put(ctx, st, rev); err != nil {
		return m.storeErr(streamID, err)
	}
	m.limiters.Delete(stateKey(tenantID, streamID))
	m.cancelFetches(tenantID, streamID)

	m.logger.WarnContext(ctx, "stream terminated",
		slog.String("stream_id", streamID),
		slog.String("tenant_id", tenantID),
		slog.String("phase", string(phase)),
		slog.String("reason", reason))
	return nil
}

// Resume validates a resume token against the stream's persisted
// position and returns the state a producer continues from. A failed
// stream that was marked resumable is re-activated; completed and
// cancelled streams stay closed. An offset that no longer matches the
// stored position is a hard error; the producer must restart the
// stream.
func (m *Manager) Resume(ctx context.Context, token string, offset int64) (*State, *Ack, error) {
	if m.tokens == nil {
		return nil, nil, streamErr(CodeTokenInvalid, "", "resume tokens not configured")
	}
	pos, err := m.tokens.Verify(token)
	if err != nil {
		return nil, nil, streamErr(CodeTokenInvalid, "", "resume token rejected")
	}

	mu := m.lock(pos.TenantID, pos.StreamID)
	mu.Lock()
	defer mu.Unlock()

	st, err := m.loadResumable(ctx, pos.TenantID, pos.StreamID)
	if err != nil {
		return nil, nil, err
	}
	if pos.Offset != st.Offset || pos.LastSequence != st.LastSequence {
		return nil, nil, streamErr(CodeResumeMismatch, pos.StreamID,
			"token position (offset %d, seq %d) does not match stream (offset %d, seq %d)",
			pos.Offset, pos.LastSequence, st.Offset, st.LastSequence)
	}
	if offset != st.Offset {
		return nil, nil, streamErr(CodeResumeMismatch, pos.StreamID,
			"producer offset %d does not match stream offset %d", offset, st.Offset)
	}

	if st.Phase == PhaseFailed {
		rev := st.Revision
		st.Phase = PhaseActive
		st.FailureReason = ""
		st.UpdatedAt = m.clock().UTC()
		if err := m.store.Put(ctx, st, rev); err != nil {
			return nil, nil, m.storeErr(pos.StreamID, err)
		}
		m.logger.InfoContext(ctx, "stream resumed",
			slog.String("stream_id", pos.StreamID),
			slog.String("tenant_id", pos.TenantID),
			slog.Int64("offset", st.Offset))
	}

	ack, err := m.ack(st)
	if err != nil {
		return nil, nil, err
	}
	return st, ack, nil
}

// Sweep fails every active stream whose last activity is older than
// the idle timeout. It returns the number of streams failed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	states, err := m.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.clock().UTC().Add(-m.idleTimeout)
	failed := 0
	for _, st := range states {
		if st.UpdatedAt.After(cutoff) {
			continue
		}
		err := m.Fail(ctx, st.TenantID, st.StreamID, "inactivity timeout")
		if err != nil {
			var serr *StreamError
			if errors.As(err, &serr) && serr.Code == CodeInvalidTransition {
				continue // terminated by someone else since the listing
			}
			return failed, err
		}
		failed++
	}
	return failed, nil
}

func (m *Manager) loadActive(ctx context.Context, tenantID, streamID string) (*State, error) {
	st, err := m.store.Get(ctx, tenantID, streamID)
	if errors.Is(err, ErrStateNotFound) {
		return nil, streamErr(CodeUnknownStream, streamID, "no such stream")
	}
	if err != nil {
		return nil, err
	}
	if st.Phase.Terminal() {
		return nil, streamErr(CodeInvalidTransition, streamID, "stream is %s", st.Phase)
	}
	return st, nil
}

// FetchContext returns a context scoped to the stream's lifetime.
// Reference fetches performed while assembling a stream should run
// under it: when the stream ends, fails, or is cancelled the context
// is cancelled and any in-flight fetch aborts.
func (m *Manager) FetchContext(parent context.Context, tenantID, streamID string) context.Context {
	key := stateKey(tenantID, streamID)
	if v, ok := m.fetchCtxs.Load(key); ok {
		return v.(*fetchScope).ctx
	}
	ctx, cancel := context.WithCancel(parent)
	actual, loaded := m.fetchCtxs.LoadOrStore(key, &fetchScope{ctx: ctx, cancel: cancel})
	if loaded {
		cancel()
	}
	return actual.(*fetchScope).ctx
}

func (m *Manager) cancelFetches(tenantID, streamID string) {
	if v, ok := m.fetchCtxs.LoadAndDelete(stateKey(tenantID, streamID)); ok {
		v.(*fetchScope).cancel()
	}
}

// loadResumable is loadActive widened for Resume: a failed stream
// whose producer asked for resumability is still reachable.
func (m *Manager) loadResumable(ctx context.Context, tenantID, streamID string) (*State, error) {
	st, err := m.store.Get(ctx, tenantID, streamID)
	if errors.Is(err, ErrStateNotFound) {
		return nil, streamErr(CodeUnknownStream, streamID, "no such stream")
	}
	if err != nil {
		return nil, err
	}
	switch {
	case st.Phase == PhaseActive:
	case st.Phase == PhaseFailed && st.Resumable:
	default:
		return nil, streamErr(CodeInvalidTransition, streamID, "stream is %s", st.Phase)
	}
	return st, nil
}

func (m *Manager) allowChunk(tenantID, streamID string) bool {
	if m.chunkRate <= 0 {
		return true
	}
	key := stateKey(tenantID, streamID)
	v, _ := m.limiters.LoadOrStore(key, rate.NewLimiter(m.chunkRate, m.chunkBurst))
	return v.(*rate.Limiter).Allow()
}

func (m *Manager) ack(st *State) (*Ack, error) {
	ack := &Ack{
		StreamID: st.StreamID,
		Sequence: st.LastSequence,
		Offset:   st.Offset,
		Phase:    st.Phase,
	}
	if st.ExpectedBytes != nil && *st.ExpectedBytes > 0 {
		progress := float64(st.Offset) / float64(*st.ExpectedBytes)
		ack.Progress = &progress
	}
	if st.Resumable && st.Phase == PhaseActive && m.tokens != nil {
		token, err := m.tokens.Issue(st)
		if err != nil {
			return nil, streamErr(CodeTokenInvalid, st.StreamID, "mint resume token: %v", err)
		}
		ack.ResumeToken = token
	}
	return ack, nil
}

func (m *Manager) storeErr(streamID string, err error) error {
	if errors.Is(err, ErrConflict) {
		return streamErr(CodeConflict, streamID, "state modified concurrently, retry")
	}
	return err
}
