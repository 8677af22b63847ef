package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"speedd/internal/dispatch"
	"speedd/internal/wire"
)

func TestSinkFIFOOrder(t *testing.T) {
	s := dispatch.NewSink(0)
	s.Send(wire.Ticket{Plate: "A"})
	s.Send(wire.Ticket{Plate: "B"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	t1, ok := s.Next(ctx)
	require.True(t, ok)
	require.Equal(t, "A", t1.Plate)

	t2, ok := s.Next(ctx)
	require.True(t, ok)
	require.Equal(t, "B", t2.Plate)
}

func TestSinkNextBlocksUntilSend(t *testing.T) {
	s := dispatch.NewSink(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan wire.Ticket, 1)
	go func() {
		t1, ok := s.Next(ctx)
		if ok {
			done <- t1
		}
	}()

	time.Sleep(20 * time.Millisecond)
	s.Send(wire.Ticket{Plate: "LATE"})

	select {
	case t1 := <-done:
		require.Equal(t, "LATE", t1.Plate)
	case <-time.After(time.Second):
		t.Fatal("Next never returned after Send")
	}
}

func TestSinkCloseDiscardsQueue(t *testing.T) {
	s := dispatch.NewSink(0)
	s.Send(wire.Ticket{Plate: "DISCARDED"})
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := s.Next(ctx)
	require.False(t, ok, "a closed sink must never yield a ticket, queued or not")
}

func TestSinkSendAfterCloseIsNoop(t *testing.T) {
	s := dispatch.NewSink(0)
	s.Close()
	s.Send(wire.Ticket{Plate: "TOO-LATE"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, ok := s.Next(ctx)
	require.False(t, ok)
}

func TestSinkNextRespectsContextCancellation(t *testing.T) {
	s := dispatch.NewSink(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, ok := s.Next(ctx)
	require.False(t, ok)
}
