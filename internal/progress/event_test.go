package progress

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti(t *testing.T) {
	var a, b []Kind
	m := Multi(
		EmitterFunc(func(ev Event) { a = append(a, ev.Kind) }),
		nil,
		EmitterFunc(func(ev Event) { b = append(b, ev.Kind) }),
	)
	m.Emit(Event{Kind: KindStageStarted})
	m.Emit(Event{Kind: KindStageCompleted})

	assert.Equal(t, []Kind{KindStageStarted, KindStageCompleted}, a)
	assert.Equal(t, a, b)
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	first, cancelFirst := bus.Subscribe(4)
	second, cancelSecond := bus.Subscribe(4)
	defer cancelSecond()

	bus.Emit(Event{Kind: KindTaskStarted, TaskID: "t1"})

	ev1 := <-first
	ev2 := <-second
	assert.Equal(t, "t1", ev1.TaskID)
	assert.Equal(t, "t1", ev2.TaskID)
	assert.False(t, ev1.Timestamp.IsZero())

	cancelFirst()
	cancelFirst()
	_, ok := <-first
	assert.False(t, ok, "cancel closes the channel")

	bus.Emit(Event{Kind: KindTaskCompleted})
	ev := <-second
	assert.Equal(t, KindTaskCompleted, ev.Kind)
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(Event{Kind: KindOutputLine, Line: "1"})
	bus.Emit(Event{Kind: KindOutputLine, Line: "2"})

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, "1", (<-ch).Line)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(0)
	bus.Close()
	bus.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	bus.Emit(Event{Kind: KindRunStopped})

	late, _ := bus.Subscribe(1)
	_, ok = <-late
	require.False(t, ok)
}

func TestTranscript(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	em := Transcript(log)

	em.Emit(Event{Kind: KindStageStarted, TaskID: "login", Stage: "code"})
	em.Emit(Event{Kind: KindOutputLine, RunID: "r1", TaskID: "login", Stage: "code", Stream: "stdout", Line: "editing login.go"})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `msg="agent output"`)
	assert.Contains(t, out, "task_id=login")
	assert.Contains(t, out, "stream=stdout")
	assert.Contains(t, out, `line="editing login.go"`)
}

func TestTranscript_SkipsAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	Transcript(log).Emit(Event{Kind: KindOutputLine, Line: "noise"})

	assert.Empty(t, buf.String())
}
