package scanner

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// newFakeCGMinerServer listens on 127.0.0.1 and replies to every request
// with a fixed NUL-terminated "version" response, mimicking the
// cgminer-API wire format closely enough for the scanner's control-port
// probe.
func newFakeCGMinerServer(t *testing.T, body string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 4096)
				_, _ = conn.Read(buf)
				_, _ = conn.Write(append([]byte(body), 0))
			}()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func waitForJobTerminal(t *testing.T, store *storage.BoltStore, jobID string) *types.IPScanJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetScanJob(jobID)
		require.NoError(t, err)
		if job.Status == types.ScanJobCompleted || job.Status == types.ScanJobFailed || job.Status == types.ScanJobCancelled {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scan job did not reach a terminal state in time")
	return nil
}

func TestScan_DiscoversMinerViaControlPort(t *testing.T) {
	store := newTestStore(t)
	port := newFakeCGMinerServer(t, `{"VERSION":[{"Type":"Antminer S19"}]}`)

	s := New(store)
	job, err := s.Scan(context.Background(), Request{
		SiteID:      "site-a",
		Range:       Range{Start: "127.0.0.1", End: "127.0.0.1"},
		ControlPort: port,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ScanJobPending, job.Status)

	final := waitForJobTerminal(t, store, job.ID)
	assert.Equal(t, types.ScanJobCompleted, final.Status)
	assert.Equal(t, 1, final.ScannedIPs)
	assert.Equal(t, 1, final.DiscoveredMiners)

	discovered, err := store.ListDiscoveredMiners(job.ID)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "127.0.0.1", discovered[0].IPAddress)
	assert.Equal(t, "Antminer", discovered[0].DetectedModel)
	assert.False(t, discovered[0].IsImported)
}

func TestScan_UnreachableHostYieldsNoDiscovery(t *testing.T) {
	store := newTestStore(t)

	s := New(store)
	job, err := s.Scan(context.Background(), Request{
		SiteID:       "site-a",
		Range:        Range{Start: "127.0.0.1", End: "127.0.0.1"},
		ControlPort:  1, // nothing listens here
		ProbeTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	final := waitForJobTerminal(t, store, job.ID)
	assert.Equal(t, types.ScanJobCompleted, final.Status)
	assert.Equal(t, 0, final.DiscoveredMiners)
}

func TestScan_RejectsRangeOverMaxIPs(t *testing.T) {
	store := newTestStore(t)
	s := New(store)

	_, err := s.Scan(context.Background(), Request{
		Range:  Range{CIDR: "10.0.0.0/16"}, // 65536 hosts
		MaxIPs: 100,
	})
	require.Error(t, err)
	var tooLarge *ErrScanRangeTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}

func TestClassifyFamily_UnknownReachableDeviceReportsUnknown(t *testing.T) {
	store := newTestStore(t)
	port := newFakeCGMinerServer(t, `{"VERSION":[{"Type":"mystery-rig"}]}`)

	s := New(store)
	job, err := s.Scan(context.Background(), Request{
		Range:       Range{Start: "127.0.0.1", End: "127.0.0.1"},
		ControlPort: port,
	})
	require.NoError(t, err)

	final := waitForJobTerminal(t, store, job.ID)
	discovered, err := store.ListDiscoveredMiners(final.ID)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "UNKNOWN", discovered[0].DetectedModel)
}

func TestScan_MuteControlPortStillReportsUnknownDiscovery(t *testing.T) {
	store := newTestStore(t)

	// A listener that accepts the handshake but closes without ever
	// writing: the port is open, the protocol probe gets nothing.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	s := New(store)
	job, err := s.Scan(context.Background(), Request{
		Range:        Range{Start: "127.0.0.1", End: "127.0.0.1"},
		ControlPort:  port,
		ProbeTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	final := waitForJobTerminal(t, store, job.ID)
	assert.Equal(t, 1, final.DiscoveredMiners)

	discovered, err := store.ListDiscoveredMiners(final.ID)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "UNKNOWN", discovered[0].DetectedModel)
}
