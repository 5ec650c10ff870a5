// Package ingest normalizes raw gateway webhook payloads into canonical
// events and downloads media bytes from the gateway's media host. It performs
// no session state changes; routing and correlation happen downstream.
package ingest
