// Package internaldefs holds the stable metric name and bucket definitions
// shared by the exporter implementations, so the Prometheus and OTel surfaces
// always agree on names and boundaries.
package internaldefs
