package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-labs/uep/pkg/contracts"
)

var testClock = func() time.Time {
	return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
}

func testManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	tokens := NewTokenIssuer([]byte("test-resume-secret"), time.Hour).WithClock(testClock)
	opts = append([]ManagerOption{WithClock(testClock)}, opts...)
	return NewManager(NewMemoryStore(), tokens, opts...)
}

func streamEnv(envType contracts.EnvelopeType, streamID string, seq int64, mutate func(*contracts.StreamingInfo)) *contracts.Envelope {
	info := &contracts.StreamingInfo{
		StreamID: streamID,
		Sequence: contracts.SequenceInfo{Current: seq},
	}
	if mutate != nil {
		mutate(info)
	}
	return &contracts.Envelope{
		EnvelopeID:  fmt.Sprintf("env-%s-%d", streamID, seq),
		SpecVersion: contracts.SpecVersion,
		Type:        envType,
		Source: contracts.SourceCard{
			ID:   "svc-upload",
			Type: contracts.PrincipalService,
			Context: &contracts.ExecutionContext{
				TenantID: "tenant-7",
			},
		},
		Timestamp: testClock(),
		Payload: contracts.Payload{
			ContentType: "application/octet-stream",
			Delivery:    contracts.DeliveryChunked,
		},
		Streaming: info,
	}
}

func startEnv(streamID string, total int64, ordered, resumable bool) *contracts.Envelope {
	return streamEnv(contracts.TypeStreamStart, streamID, 1, func(i *contracts.StreamingInfo) {
		i.Sequence.IsFirst = true
		if total > 0 {
			i.Sequence.Total = &total
		}
		i.RequiresOrdering = ordered
		i.Resumable = resumable
	})
}

func chunkEnv(streamID string, seq int64) *contracts.Envelope {
	return streamEnv(contracts.TypeStreamChunk, streamID, seq, nil)
}

func endEnv(streamID string, seq, total int64) *contracts.Envelope {
	return streamEnv(contracts.TypeStreamEnd, streamID, seq, func(i *contracts.StreamingInfo) {
		i.Sequence.IsLast = true
		i.Sequence.Total = &total
	})
}

func TestStreamLifecycleCompletes(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, true, false))
	require.NoError(t, err)

	for seq := int64(2); seq <= 4; seq++ {
		ack, err := m.Chunk(ctx, chunkEnv("s1", seq), []byte("abcd"))
		require.NoError(t, err)
		assert.Equal(t, seq, ack.Sequence)
	}

	ack, err := m.End(ctx, endEnv("s1", 5, 5))
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, ack.Phase)
	assert.Equal(t, int64(12), ack.Offset)
}

func TestProgressTracksAnnouncedSize(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	start := startEnv("s1", 4, true, false)
	size := int64(12)
	start.Payload.SizeBytes = &size
	_, err := m.Start(ctx, start)
	require.NoError(t, err)

	ack, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("abcdef"))
	require.NoError(t, err)
	require.NotNil(t, ack.Progress)
	assert.InDelta(t, 0.5, *ack.Progress, 1e-9)

	_, err = m.Chunk(ctx, chunkEnv("s1", 3), []byte("ghijkl"))
	require.NoError(t, err)

	done, err := m.End(ctx, endEnv("s1", 4, 4))
	require.NoError(t, err)
	require.NotNil(t, done.Progress)
	assert.Equal(t, 1.0, *done.Progress)
}

func TestProgressIndeterminateWithoutAnnouncedSize(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, false))
	require.NoError(t, err)

	ack, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("abc"))
	require.NoError(t, err)
	assert.Nil(t, ack.Progress)
}

func TestDuplicateStartRejected(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, false))
	require.NoError(t, err)

	_, err = m.Start(ctx, startEnv("s1", 0, false, false))
	assertStreamCode(t, err, CodeDuplicateStream)
}

func TestOrderedStreamRejectsGapAndStaysActive(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, true, false))
	require.NoError(t, err)

	// Sequence 3 before 2 is a gap on an ordered stream.
	_, err = m.Chunk(ctx, chunkEnv("s1", 3), []byte("x"))
	assertStreamCode(t, err, CodeSequenceGap)

	// The rejection does not kill the stream; retransmission succeeds.
	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)
	_, err = m.Chunk(ctx, chunkEnv("s1", 3), []byte("x"))
	require.NoError(t, err)
}

func TestUnorderedStreamAcceptsOutOfOrder(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, false, false))
	require.NoError(t, err)

	for _, seq := range []int64{4, 2, 3} {
		_, err := m.Chunk(ctx, chunkEnv("s1", seq), []byte("x"))
		require.NoError(t, err)
	}

	ack, err := m.End(ctx, endEnv("s1", 5, 5))
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, ack.Phase)
}

func TestDuplicateSequenceRejected(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, false))
	require.NoError(t, err)
	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)

	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	assertStreamCode(t, err, CodeDuplicateSequence)
}

func TestEndRejectsIncompleteStream(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, false, false))
	require.NoError(t, err)
	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)
	// Sequences 3 and 4 never arrive.

	_, err = m.End(ctx, endEnv("s1", 5, 5))
	assertStreamCode(t, err, CodeIncomplete)
}

func TestEndRequiresMatchingTotal(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 3, true, false))
	require.NoError(t, err)
	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)

	_, err = m.End(ctx, endEnv("s1", 4, 3))
	assertStreamCode(t, err, CodeInvalidTransition)
}

func TestCancelAndTerminalTransitions(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, false))
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, "tenant-7", "s1"))

	// Every further operation on a terminal stream is rejected.
	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	assertStreamCode(t, err, CodeInvalidTransition)
	assertStreamCode(t, m.Cancel(ctx, "tenant-7", "s1"), CodeInvalidTransition)
	assertStreamCode(t, m.Fail(ctx, "tenant-7", "s1", "boom"), CodeInvalidTransition)
}

func TestParallelStreamsAreIndependent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	const streams = 16
	errs := make(chan error, streams)
	var wg sync.WaitGroup
	for i := 0; i < streams; i++ {
		id := fmt.Sprintf("par-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Start(ctx, startEnv(id, 5, true, false)); err != nil {
				errs <- err
				return
			}
			for seq := int64(2); seq <= 4; seq++ {
				if _, err := m.Chunk(ctx, chunkEnv(id, seq), []byte("data")); err != nil {
					errs <- err
					return
				}
			}
			ack, err := m.End(ctx, endEnv(id, 5, 5))
			if err != nil {
				errs <- err
				return
			}
			if ack.Phase != PhaseCompleted {
				errs <- fmt.Errorf("stream %s ended in phase %s", id, ack.Phase)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCancelAbortsFetchContext(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, false))
	require.NoError(t, err)

	fetchCtx := m.FetchContext(ctx, "tenant-7", "s1")
	require.NoError(t, fetchCtx.Err())
	// Repeated calls share the stream's context.
	assert.Same(t, fetchCtx, m.FetchContext(ctx, "tenant-7", "s1"))

	require.NoError(t, m.Cancel(ctx, "tenant-7", "s1"))

	select {
	case <-fetchCtx.Done():
	default:
		t.Fatal("fetch context still live after cancel")
	}
	assert.ErrorIs(t, fetchCtx.Err(), context.Canceled)
}

func TestUnknownStream(t *testing.T) {
	m := testManager(t)
	_, err := m.Chunk(context.Background(), chunkEnv("nope", 2), []byte("x"))
	assertStreamCode(t, err, CodeUnknownStream)
}

func TestResumeRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, true, true))
	require.NoError(t, err)
	ack, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("abcdefgh"))
	require.NoError(t, err)
	require.NotEmpty(t, ack.ResumeToken)

	st, resumed, err := m.Resume(ctx, ack.ResumeToken, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.LastSequence)
	assert.Equal(t, int64(8), resumed.Offset)

	// Resuming is idempotent: the same token verifies again.
	_, _, err = m.Resume(ctx, ack.ResumeToken, 8)
	assert.NoError(t, err)

	// The producer continues exactly where it left off.
	_, err = m.Chunk(ctx, chunkEnv("s1", 3), []byte("x"))
	assert.NoError(t, err)
}

func TestResumeReopensSweptStream(t *testing.T) {
	now := testClock()
	tokens := NewTokenIssuer([]byte("secret"), time.Hour).WithClock(func() time.Time { return now })
	m := NewManager(NewMemoryStore(), tokens,
		WithClock(func() time.Time { return now }),
		WithIdleTimeout(time.Minute))
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, true, true))
	require.NoError(t, err)
	var ack *Ack
	for seq := int64(2); seq <= 3; seq++ {
		ack, err = m.Chunk(ctx, chunkEnv("s1", seq), []byte("ab"))
		require.NoError(t, err)
	}
	require.NotEmpty(t, ack.ResumeToken)

	now = now.Add(2 * time.Minute)
	failed, err := m.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, failed)

	// The failed-but-resumable stream re-opens at its recorded position
	// and the transfer runs to completion.
	st, resumed, err := m.Resume(ctx, ack.ResumeToken, 4)
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, st.Phase)
	assert.Equal(t, int64(3), resumed.Sequence)
	assert.Equal(t, int64(4), resumed.Offset)

	_, err = m.Chunk(ctx, chunkEnv("s1", 4), []byte("ab"))
	require.NoError(t, err)
	done, err := m.End(ctx, endEnv("s1", 5, 5))
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, done.Phase)
}

func TestResumeRejectsCancelledStream(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, true))
	require.NoError(t, err)
	ack, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, "tenant-7", "s1"))

	_, _, err = m.Resume(ctx, ack.ResumeToken, 1)
	assertStreamCode(t, err, CodeInvalidTransition)
}

func TestResumeRejectsStaleOffset(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, true, true))
	require.NoError(t, err)
	stale, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("abcd"))
	require.NoError(t, err)
	_, err = m.Chunk(ctx, chunkEnv("s1", 3), []byte("abcd"))
	require.NoError(t, err)

	// The token from chunk 2 no longer matches the stream position.
	_, _, err = m.Resume(ctx, stale.ResumeToken, 4)
	assertStreamCode(t, err, CodeResumeMismatch)
}

func TestResumeRejectsWrongProducerOffset(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 5, true, true))
	require.NoError(t, err)
	ack, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("abcd"))
	require.NoError(t, err)

	_, _, err = m.Resume(ctx, ack.ResumeToken, 3)
	assertStreamCode(t, err, CodeResumeMismatch)
}

func TestResumeRejectsGarbageToken(t *testing.T) {
	m := testManager(t)
	_, _, err := m.Resume(context.Background(), "not-a-token", 0)
	assertStreamCode(t, err, CodeTokenInvalid)
}

func TestResumeRejectsExpiredToken(t *testing.T) {
	now := testClock()
	tokens := NewTokenIssuer([]byte("secret"), time.Minute).WithClock(func() time.Time { return now })
	m := NewManager(NewMemoryStore(), tokens, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, true))
	require.NoError(t, err)
	ack, err := m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, _, err = m.Resume(ctx, ack.ResumeToken, 1)
	assertStreamCode(t, err, CodeTokenInvalid)
}

func TestSweepFailsIdleStreams(t *testing.T) {
	now := testClock()
	m := NewManager(NewMemoryStore(), nil,
		WithClock(func() time.Time { return now }),
		WithIdleTimeout(time.Minute))
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("idle", 0, false, false))
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = m.Start(ctx, startEnv("fresh", 0, false, false))
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	failed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	_, err = m.Chunk(ctx, chunkEnv("idle", 2), []byte("x"))
	assertStreamCode(t, err, CodeInvalidTransition)
	_, err = m.Chunk(ctx, chunkEnv("fresh", 2), []byte("x"))
	assert.NoError(t, err)
}

func TestChunkRateLimit(t *testing.T) {
	m := testManager(t, WithChunkRate(1, 2))
	ctx := context.Background()

	_, err := m.Start(ctx, startEnv("s1", 0, false, false))
	require.NoError(t, err)

	_, err = m.Chunk(ctx, chunkEnv("s1", 2), []byte("x"))
	require.NoError(t, err)
	_, err = m.Chunk(ctx, chunkEnv("s1", 3), []byte("x"))
	require.NoError(t, err)

	// Burst exhausted; the third chunk in the same instant is refused.
	_, err = m.Chunk(ctx, chunkEnv("s1", 4), []byte("x"))
	assertStreamCode(t, err, CodeRateLimited)
}

func assertStreamCode(t *testing.T, err error, code string) {
	t.Helper()
	var serr *StreamError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, code, serr.Code)
}
