package transporttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/pgmflow/internal/transport"
)

func TestEngine_RecordsCallsAndCounts(t *testing.T) {
	e := New()
	s, err := e.Socket(transport.FamilyIPv4, transport.EncapUDP)
	require.NoError(t, err)

	require.NoError(t, s.SetOption(transport.OptMTU, 1500))
	require.NoError(t, s.Bind(transport.BindRequest{Port: 7500}))
	require.NoError(t, s.Connect())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.Equal(t, []string{MethodSocket, MethodSetOption, MethodBind, MethodConnect, MethodClose}, e.Methods())
	require.Equal(t, 1, e.Allocs())
	require.Equal(t, 1, e.Closes())
	require.Zero(t, e.Open())

	v, ok := e.OptionValue(transport.OptMTU)
	require.True(t, ok)
	require.Equal(t, 1500, v)
}

func TestEngine_ScriptedFailures(t *testing.T) {
	boom := errors.New("boom")
	e := New()
	e.FailOption(transport.OptTXWSqns, boom)
	e.FailOn(MethodConnect, boom)

	s, err := e.Socket(transport.FamilyIPv6, transport.EncapUDP)
	require.NoError(t, err)
	require.NoError(t, s.SetOption(transport.OptMTU, 1500))
	require.ErrorIs(t, s.SetOption(transport.OptTXWSqns, 64), boom)
	require.ErrorIs(t, s.Connect(), boom)

	// Range checks come from the shared option table.
	require.Error(t, s.SetOption(transport.OptMulticastHops, 0))
}

func TestEngine_ReceiveQueueAndCancel(t *testing.T) {
	e := New()
	s, err := e.Socket(transport.FamilyIPv4, transport.EncapUDP)
	require.NoError(t, err)

	e.QueueMessage([]byte("ab"), []byte("cd"))
	msg, err := s.ReceiveMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, msg.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.ReceiveMessage(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A message queued while blocked wakes the receiver.
	go func() {
		time.Sleep(5 * time.Millisecond)
		e.QueueMessage([]byte("late"))
	}()
	msg, err = s.ReceiveMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, "late", string(msg.Segments[0]))

	require.NoError(t, s.Close())
	_, err = s.ReceiveMessage(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestEngine_DrainModes(t *testing.T) {
	e := New()
	s, err := e.Socket(transport.FamilyIPv4, transport.EncapUDP)
	require.NoError(t, err)

	require.NoError(t, s.DrainInternal(context.Background()))

	boom := errors.New("drain failed")
	e.SetDrainError(boom)
	require.ErrorIs(t, s.DrainInternal(context.Background()), boom)
	e.SetDrainError(nil)

	release := e.HoldDrain()
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- s.DrainInternal(ctx) }()
	cancel()
	select {
	case <-done:
		t.Fatal("held drain returned before release")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	require.NoError(t, <-done)
	require.Equal(t, 3, e.Drains())
}

func TestEngine_SendRecordsCopies(t *testing.T) {
	e := New()
	s, err := e.Socket(transport.FamilyIPv4, transport.EncapUDP)
	require.NoError(t, err)

	frame := []byte("frame")
	status, err := s.Send(context.Background(), frame)
	require.NoError(t, err)
	require.Equal(t, transport.StatusNormal, status)
	frame[0] = 'X'
	require.Equal(t, "frame", string(e.Sent()[0]))

	e.SetSendResult(transport.StatusRateLimited, nil)
	status, _ = s.Send(context.Background(), frame)
	require.Equal(t, transport.StatusRateLimited, status)
	require.Len(t, e.Sent(), 1)
}
