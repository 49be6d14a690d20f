// Package graft holds the wire-level types and URL conventions shared by the
// server packages and external consumers.
package graft

import "time"

// Media types involved in ActivityPub content negotiation.
const (
	MimeActivityJSON = "application/activity+json"
	MimeLDJSON       = "application/ld+json"
)

// NamespaceAS is the ActivityStreams namespace IRI. It doubles as the
// profile token that marks an ld+json request as ActivityPub.
const NamespaceAS = "https://www.w3.org/ns/activitystreams"

// Event is broadcast over the signal channel whenever an activity has been
// accepted and persisted.
type Event struct {
	Verb      string    `json:"verb"`
	Activity  string    `json:"activity"`
	Actor     string    `json:"actor"`
	Objects   []string  `json:"objects,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
