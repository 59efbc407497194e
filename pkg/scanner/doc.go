// Package scanner implements the bounded-concurrency IP-range discovery
// sweep: given a start-end range or CIDR block, it probes each host's
// control port (and, failing that, its web console) and reports what it
// finds as DiscoveredMiner rows under an IPScanJob whose progress
// counters update as the sweep runs.
package scanner
