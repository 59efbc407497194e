// Package edgeclient is the edge-side HTTP client for the cloud↔edge
// boundary served by pkg/cloudapi. It implements pkg/edge.CloudClient
// over bearer-token-authenticated REST calls: heartbeat, secret sync,
// command poll/ack. The edge never holds a persistent connection to the
// cloud — every call is a single short-lived HTTPS request, matching the
// runtime's own poll-don't-subscribe design.
package edgeclient
