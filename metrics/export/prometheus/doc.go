// Package prometheus exposes engine metrics as a prometheus/client_golang
// collector. Snapshots are read on scrape; nothing is pushed.
package prometheus
