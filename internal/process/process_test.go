// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package process

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZSC714725/resolvebridge/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stub launches a shell script standing in for the helper executable.
func stub(t *testing.T, script string) Helper {
	t.Helper()
	h, err := New(Config{
		Binary:   "sh",
		Args:     []string{"-c", script},
		LogLines: 256,
		Limiter:  NewNullLimiter(),
	})
	require.NoError(t, err)
	return h
}

// echoResponder answers any non-shutdown line with a canned response and
// exits cleanly on shutdown.
const echoResponder = `
while read line; do
  case "$line" in
    *shutdown*) exit 0 ;;
    *) echo '{"success":true,"srt_path":"/tmp/test.srt"}' ;;
  esac
done
`

func waitState(t *testing.T, h Helper, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("helper never reached state %s (is %s)", want, h.State())
}

func TestNewRequiresBinary(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoBinary)
}

func TestStartMissingBinary(t *testing.T) {
	h, err := New(Config{Binary: "definitely-not-a-real-helper-binary", Limiter: NewNullLimiter()})
	require.NoError(t, err)

	err = h.Start()
	require.Error(t, err)
	assert.False(t, h.IsRunning())
	assert.Equal(t, StateNotStarted, h.State())
}

func TestStartTwice(t *testing.T) {
	h := stub(t, echoResponder)
	require.NoError(t, h.Start())
	require.ErrorIs(t, h.Start(), ErrAlreadyStarted)
	require.NoError(t, h.Terminate(2*time.Second))
}

func TestCommandRoundTrip(t *testing.T) {
	h := stub(t, echoResponder)
	require.NoError(t, h.Start())
	assert.Equal(t, StateIdle, h.State())

	line, err := protocol.Encode(protocol.Command{Cmd: protocol.CmdTestPlace})
	require.NoError(t, err)
	require.NoError(t, h.BeginCommand())
	require.NoError(t, h.WriteLine(line))

	select {
	case msg := <-h.Messages():
		resp, ok := msg.(protocol.Response)
		require.True(t, ok)
		assert.True(t, resp.Success)
		assert.Equal(t, "/tmp/test.srt", resp.SrtPath)
	case <-time.After(5 * time.Second):
		t.Fatal("no response from stub helper")
	}

	h.EndCommand()
	assert.Equal(t, StateIdle, h.State())

	require.NoError(t, h.Terminate(2*time.Second))
	waitState(t, h, StateTerminated)
	assert.Equal(t, 0, h.Status().ExitCode)
}

func TestCrashDetection(t *testing.T) {
	h := stub(t, "exit 3")
	require.NoError(t, h.Start())

	// message channel closes when the child exits
	select {
	case _, ok := <-h.Messages():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("message channel never closed")
	}

	waitState(t, h, StateCrashed)
	status := h.Status()
	assert.Equal(t, 3, status.ExitCode)
	assert.False(t, h.IsRunning())

	// writes after the crash are refused, not swallowed
	err := h.WriteLine([]byte("{}\n"))
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestTerminateIdempotent(t *testing.T) {
	h := stub(t, echoResponder)
	require.NoError(t, h.Start())

	require.NoError(t, h.Terminate(2*time.Second))
	waitState(t, h, StateTerminated)
	require.NoError(t, h.Terminate(2*time.Second))
	assert.Equal(t, StateTerminated, h.State())
}

func TestTerminateBeforeStart(t *testing.T) {
	h := stub(t, echoResponder)
	require.NoError(t, h.Terminate(time.Second))
	assert.Equal(t, StateNotStarted, h.State())
}

func TestTerminateForceKill(t *testing.T) {
	// ignores stdin entirely, so shutdown is never honored
	h := stub(t, "sleep 30")
	require.NoError(t, h.Start())

	start := time.Now()
	require.NoError(t, h.Terminate(100*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)

	waitState(t, h, StateTerminated)
	// drain the closed channel
	for range h.Messages() {
	}
}

// Under concurrent telemetry and command writes, no emitted line may contain
// two concatenated JSON objects. The cat stub echoes stdin verbatim, so the
// log ring shows exactly the byte stream the child received, line by line.
func TestWriteSerialization(t *testing.T) {
	h := stub(t, "cat")
	require.NoError(t, h.Start())

	const writers = 10
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				var line []byte
				var err error
				if w%2 == 0 {
					name := fmt.Sprintf("timeline-%d-%d", w, i)
					line, err = protocol.Encode(protocol.Telemetry{
						Event:    protocol.EventTimelineState,
						Timeline: protocol.TimelineState{Name: &name},
					})
				} else {
					line, err = protocol.Encode(protocol.Command{
						Cmd:   protocol.CmdTranscribe,
						Input: fmt.Sprintf("in-%d-%d.mp4", w, i),
						Model: "base", Device: protocol.DeviceAuto,
					})
				}
				assert.NoError(t, err)
				assert.NoError(t, h.WriteLine(line))
			}
		}(w)
	}
	wg.Wait()

	// the telemetry halves come back as valid messages; drain them while
	// waiting for every line to land in the ring
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range h.Messages() {
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.Log()) >= writers*perWriter {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	lines := h.Log()
	require.GreaterOrEqual(t, len(lines), writers*perWriter)
	for _, l := range lines {
		var obj map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(l.Data), &obj), "interleaved line: %q", l.Data)
	}

	require.NoError(t, h.Terminate(100*time.Millisecond))
	<-done
}

func TestTelemetryEchoDecodes(t *testing.T) {
	h := stub(t, "cat")
	require.NoError(t, h.Start())

	name := "Timeline 1"
	line, err := protocol.Encode(protocol.Telemetry{
		Event:    protocol.EventTimelineState,
		Timeline: protocol.TimelineState{Name: &name},
	})
	require.NoError(t, err)
	require.NoError(t, h.WriteLine(line))

	select {
	case msg := <-h.Messages():
		tel, ok := msg.(protocol.Telemetry)
		require.True(t, ok)
		require.NotNil(t, tel.Timeline.Name)
		assert.Equal(t, name, *tel.Timeline.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("echoed telemetry never arrived")
	}

	require.NoError(t, h.Terminate(100*time.Millisecond))
	for range h.Messages() {
	}
}

func TestStateTransitionsGuarded(t *testing.T) {
	h := stub(t, echoResponder)

	// cannot begin a command before start
	require.Error(t, h.BeginCommand())

	require.NoError(t, h.Start())
	require.NoError(t, h.BeginCommand())
	// single in flight: busy -> busy is refused
	require.Error(t, h.BeginCommand())
	require.NoError(t, h.BeginCancel())
	// cancelling is not a second cancellation window
	require.Error(t, h.BeginCancel())
	h.EndCommand()
	assert.Equal(t, StateIdle, h.State())

	require.NoError(t, h.Terminate(2*time.Second))
	waitState(t, h, StateTerminated)

	// absorbing
	require.Error(t, h.BeginCommand())
	status := h.Status()
	assert.Equal(t, uint64(1), status.States.Busy)
	assert.Equal(t, uint64(1), status.States.Cancelling)
	assert.Equal(t, uint64(1), status.States.Terminated)
}
