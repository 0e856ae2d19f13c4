package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bartek5186/sfa-offline/internal/collections"
	conf "github.com/bartek5186/sfa-offline/internal/config"
	"github.com/bartek5186/sfa-offline/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorNotifiesOnChangeOnly(t *testing.T) {
	m := NewMonitor(false, nil)
	var mu sync.Mutex
	var seen []bool
	unsub := m.Subscribe(func(online bool) {
		mu.Lock()
		seen = append(seen, online)
		mu.Unlock()
	})

	assert.False(t, m.Set(false))
	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.True(t, m.Online())
	assert.True(t, m.Set(false))

	unsub()
	m.Set(true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

type fakeProber struct{ up atomic.Bool }

func (p *fakeProber) Health(context.Context) error {
	if p.up.Load() {
		return nil
	}
	return fmt.Errorf("%w: refused", domain.ErrNetworkUnavailable)
}

func testConfig() *conf.Config {
	cfg := conf.Default()
	cfg.ProbeIntervalSeconds = 1
	return cfg
}

func TestReconnectRunsSyncThenDrain(t *testing.T) {
	remote := newFakeRemote()
	remote.on(spec(t, collections.Partners).Path, static(partnersJSON(2)))
	e, st := newTestEngine(t, remote, collections.Partners)

	mon := NewMonitor(false, nil)
	prober := &fakeProber{}
	prober.up.Store(true)

	var drained atomic.Int32
	var countAtDrain atomic.Int64
	s := New(zerolog.Nop(), testConfig(), e, mon, prober, func(ctx context.Context) error {
		n, _ := st.Count(ctx, collections.Partners)
		countAtDrain.Store(n)
		drained.Add(1)
		return nil
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return drained.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, mon.Online())
	// sync przed drenażem
	assert.EqualValues(t, 2, countAtDrain.Load())
	assert.True(t, s.IsRunning())
}

func TestProbeFailureGoesOffline(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRemote())
	mon := NewMonitor(true, nil)
	prober := &fakeProber{}

	var drained atomic.Int32
	s := New(zerolog.Nop(), testConfig(), e, mon, prober, func(context.Context) error {
		drained.Add(1)
		return nil
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return !mon.Online() }, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, drained.Load())
}

func TestRejectedProbeCountsAsOnline(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRemote())
	mon := NewMonitor(false, nil)
	s := New(zerolog.Nop(), testConfig(), e, mon, rejectingProber{}, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, mon.Online, 3*time.Second, 10*time.Millisecond)
}

type rejectingProber struct{}

func (rejectingProber) Health(context.Context) error {
	return fmt.Errorf("%w: http 404", domain.ErrRemoteRejected)
}

func TestStartStopIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, newFakeRemote())
	s := New(zerolog.Nop(), testConfig(), e, NewMonitor(false, nil), &fakeProber{}, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestInvalidScheduleDoesNotBlockStart(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.Schedule = "not a cron"
	e, _ := newTestEngine(t, newFakeRemote())
	s := New(zerolog.Nop(), cfg, e, NewMonitor(false, nil), &fakeProber{}, nil)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestScheduledSyncSkipsOffline(t *testing.T) {
	remote := newFakeRemote()
	path := spec(t, collections.Partners).Path
	remote.on(path, static(partnersJSON(1)))
	e, _ := newTestEngine(t, remote, collections.Partners)
	mon := NewMonitor(false, nil)
	s := New(zerolog.Nop(), testConfig(), e, mon, &fakeProber{}, nil)

	s.scheduledSync(context.Background())
	assert.Zero(t, remote.Calls(path))

	mon.Set(true)
	s.scheduledSync(context.Background())
	assert.Equal(t, 1, remote.Calls(path))
}
