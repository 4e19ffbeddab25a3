// Package gstreamer registers a GStreamer back-end for the engine registry.
// It is compiled only with the gstreamer build tag, which needs the
// GStreamer development libraries and cgo:
//
//	go build -tags gstreamer .
//
// Without the tag the package is empty and only the sim back-end exists.
package gstreamer
