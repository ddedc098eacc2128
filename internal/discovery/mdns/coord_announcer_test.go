package mdns

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordAnnouncer(t *testing.T) {
	cfg := CoordAnnouncerConfig{
		Instance:   "pg-master-test",
		GRPCPort:   9000,
		HTTPPort:   8080,
		Version:    "v1.0.0",
		InstanceID: "test-123",
	}

	announcer := NewCoordAnnouncer(cfg)

	assert.NotNil(t, announcer)
	assert.Equal(t, cfg.Instance, announcer.cfg.Instance)
	assert.Equal(t, cfg.GRPCPort, announcer.cfg.GRPCPort)
	assert.Equal(t, cfg.HTTPPort, announcer.cfg.HTTPPort)
	assert.Equal(t, cfg.Version, announcer.cfg.Version)
	assert.Equal(t, cfg.InstanceID, announcer.cfg.InstanceID)
}

func TestCoordAnnouncer_BuildTXTRecords(t *testing.T) {
	announcer := NewCoordAnnouncer(CoordAnnouncerConfig{
		Instance:   "pg-master-test",
		GRPCPort:   9000,
		HTTPPort:   8080,
		Version:    "v1.0.0",
		InstanceID: "abc123",
	})

	txt := announcer.buildTXTRecords()

	assert.Contains(t, txt, "grpc_port=9000")
	assert.Contains(t, txt, "http_port=8080")
	assert.Contains(t, txt, "version=v1.0.0")
	assert.Contains(t, txt, "instance_id=abc123")
}

func TestCoordAnnouncer_BuildTXTRecords_Minimal(t *testing.T) {
	announcer := NewCoordAnnouncer(CoordAnnouncerConfig{
		Instance: "pg-master-test",
		GRPCPort: 9000,
		HTTPPort: 8080,
		// no version or instance_id
	})

	txt := announcer.buildTXTRecords()

	assert.Contains(t, txt, "grpc_port=9000")
	assert.Contains(t, txt, "http_port=8080")
	assert.Len(t, txt, 2) // only port fields
}

func TestCoordAnnouncer_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	announcer := NewCoordAnnouncer(CoordAnnouncerConfig{
		Instance: "pg-master-mdns-test",
		GRPCPort: 19000, // use high port to avoid conflicts
		HTTPPort: 18080,
		Version:  "test",
	})

	err := announcer.Start()
	require.NoError(t, err)

	// double start should error
	err = announcer.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	time.Sleep(100 * time.Millisecond)

	announcer.Stop()

	// double stop should be safe (no panic)
	announcer.Stop()
}

func TestCoordAnnouncer_StopWithoutStart(t *testing.T) {
	announcer := NewCoordAnnouncer(CoordAnnouncerConfig{
		Instance: "pg-master-test",
		GRPCPort: 9000,
		HTTPPort: 8080,
	})

	announcer.Stop()
}

func TestCoordAnnouncer_ConcurrentStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	announcer := NewCoordAnnouncer(CoordAnnouncerConfig{
		Instance: "pg-master-concurrent-test",
		GRPCPort: 29001,
		HTTPPort: 28081,
		Version:  "concurrent-test",
	})

	var wg sync.WaitGroup

	// Concurrent starts: exactly one should win the guard in Start().
	startErrors := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := announcer.Start()
			startErrors <- err
		}()
	}

	wg.Wait()
	close(startErrors)

	successCount := 0
	for err := range startErrors {
		if err == nil {
			successCount++
		}
	}

	assert.Equal(t, 1, successCount, "exactly one concurrent Start should succeed")

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			announcer.Stop()
		}()
	}

	wg.Wait()
}

func TestCoordAnnouncer_RestartAfterStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	announcer := NewCoordAnnouncer(CoordAnnouncerConfig{
		Instance: "pg-master-restart-test",
		GRPCPort: 29002,
		HTTPPort: 28082,
		Version:  "restart-test",
	})

	err := announcer.Start()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	announcer.Stop()

	time.Sleep(50 * time.Millisecond)

	err = announcer.Start()
	require.NoError(t, err)

	// settle before the deferred Stop to avoid racing zeroconf's internals
	time.Sleep(100 * time.Millisecond)

	announcer.Stop()
}
