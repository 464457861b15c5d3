// Package prometheus exposes goOTP engine metrics as a client_golang
// Collector.
//
// Counters are published as gootp_*_total and the session validation latency
// as the gootp_validate_latency_seconds histogram. The collector reads an
// engine snapshot on every scrape; it never registers itself globally.
package prometheus
