// Package metrics exposes Prometheus collectors for session traffic.
//
// A nil *Collector is valid and records nothing, so sessions built without
// metrics need no special casing.
package metrics
