package integration

import (
	"context"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/cloudapi"
	"github.com/fleetcore/minerfleet/pkg/edge"
	"github.com/fleetcore/minerfleet/pkg/edgeclient"
	"github.com/fleetcore/minerfleet/pkg/scanner"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// fakeMinerListener answers the cgminer-API "version" probe on one
// loopback port, standing in for the single reachable miner in the range.
func fakeMinerListener(t *testing.T, body string) int {
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

// TestScan_EdgeSweepMirroredToCloud drives the full discovery path: the
// edge sweeps a three-address loopback range where exactly one host
// answers the version probe as an Antminer, and RunScan mirrors the job
// lifecycle onto a real cloudapi server over HTTP. The cloud side must
// end up with a completed job counting all three scanned addresses, one
// discovery, and a not-yet-imported DiscoveredMiner row for it.
func TestScan_EdgeSweepMirroredToCloud(t *testing.T) {
	cloudStore, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cloudStore.Close() })

	edgeStore, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = edgeStore.Close() })

	device := &types.EdgeDevice{
		TenantID:    "acme",
		ID:          "dev-1",
		SiteID:      "site-a",
		DeviceToken: "tok-scan",
		KeyVersion:  1,
		Status:      types.DeviceStatusActive,
	}
	require.NoError(t, cloudStore.CreateDevice(device))

	srv := cloudapi.NewServer(cloudStore, audit.NewLogger(cloudStore), nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	cloud := edgeclient.New(ts.URL, device.DeviceToken)

	// Only 127.0.0.1 listens; .2 and .3 refuse the connection, so the
	// sweep sees three scanned hosts and a single discovery.
	port := fakeMinerListener(t, `{"VERSION":[{"Type":"Antminer S19 Pro"}]}`)

	sc := scanner.New(edgeStore)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	job, err := edge.RunScan(ctx, sc, cloud, edgeStore, scanner.Request{
		SiteID:       device.SiteID,
		DeviceID:     device.ID,
		Range:        scanner.Range{Start: "127.0.0.1", End: "127.0.0.3"},
		ControlPort:  port,
		ProbeTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, types.ScanJobCompleted, job.Status)
	assert.Equal(t, 3, job.TotalIPs)
	assert.Equal(t, 3, job.ScannedIPs)
	assert.Equal(t, 1, job.DiscoveredMiners)

	mirrored, err := cloudStore.GetScanJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ScanJobCompleted, mirrored.Status)
	assert.Equal(t, device.ID, mirrored.DeviceID)
	assert.Equal(t, 1, mirrored.DiscoveredMiners)

	discovered, err := cloudStore.ListDiscoveredMiners(job.ID)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "127.0.0.1", discovered[0].IPAddress)
	assert.Contains(t, discovered[0].DetectedModel, "Antminer")
	assert.False(t, discovered[0].IsImported)
	assert.Equal(t, port, discovered[0].ControlPort)
}

// TestScan_OversizedRangeRefusedBeforeJobCreation pins the operator-facing
// failure mode: a range past the cap never creates a job row anywhere.
func TestScan_OversizedRangeRefusedBeforeJobCreation(t *testing.T) {
	edgeStore, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = edgeStore.Close() })

	sc := scanner.New(edgeStore)
	_, err = sc.Scan(context.Background(), scanner.Request{
		Range: scanner.Range{CIDR: "10.0.0.0/16"}, // 65536 hosts, over the default cap
	})
	var tooLarge *scanner.ErrScanRangeTooLarge
	require.ErrorAs(t, err, &tooLarge)

	jobs, err := edgeStore.ListScanJobs("")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
