package resultsink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrieleiannetti/cyclone/internal/events"
)

type fakePusher struct {
	mu     sync.Mutex
	pushed []string
}

func (f *fakePusher) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	for _, v := range values {
		if s, ok := v.(string); ok {
			f.pushed = append(f.pushed, s)
		}
	}
	f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakePusher) Close() error { return nil }

func (f *fakePusher) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.pushed))
	copy(out, f.pushed)
	return out
}

func TestRedisResultSink_PushesOnlyTaskFinished(t *testing.T) {
	publisher := events.NewPublisher()
	fake := &fakePusher{}
	sink := newResultSink(fake, "cyclone:finished", publisher)
	defer sink.Close()

	publisher.Publish(events.New(events.TaskAssigned, events.TaskEventData("t1", "ctrl-a")))
	publisher.Publish(events.New(events.TaskFinished, events.TaskEventData("t2", "ctrl-a")))
	publisher.Publish(events.New(events.ControllerJoined, events.ControllerEventData("ctrl-b")))
	publisher.Publish(events.New(events.TaskFinished, events.TaskEventData("t3", "ctrl-b")))

	require.Eventually(t, func() bool {
		return len(fake.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t, []string{"t2", "t3"}, fake.snapshot())
}

func TestRedisResultSink_IgnoresEventsMissingTid(t *testing.T) {
	publisher := events.NewPublisher()
	fake := &fakePusher{}
	sink := newResultSink(fake, "cyclone:finished", publisher)
	defer sink.Close()

	publisher.Publish(events.New(events.TaskFinished, map[string]interface{}{"controller_id": "ctrl-a"}))
	publisher.Publish(events.New(events.TaskFinished, events.TaskEventData("t1", "ctrl-a")))

	require.Eventually(t, func() bool {
		return len(fake.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"t1"}, fake.snapshot())
}

func TestRedisResultSink_CloseUnsubscribes(t *testing.T) {
	publisher := events.NewPublisher()
	fake := &fakePusher{}
	sink := newResultSink(fake, "cyclone:finished", publisher)

	require.NoError(t, sink.Close())

	publisher.Publish(events.New(events.TaskFinished, events.TaskEventData("after-close", "ctrl-a")))
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, fake.snapshot())
}
