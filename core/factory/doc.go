// Package factory provides a small generic registry used to instantiate modules
// from configuration. A module is a type string plus a map of raw settings
// that the factory decodes into its own struct.
//
// Metrics sinks are built this way:
//
//	sinks:
//	  - type: influx
//	    conf: {url: "http://influx:8086", bucket: readiness}
package factory
