package rest

import (
	"mime"
	"strings"

	"github.com/graftnet/graft"
)

// isActivityPub decides the handler variant from a comma-separated media
// type list (Accept for GET, Content-Type for POST). A request is
// ActivityPub when any listed type is exactly application/activity+json,
// or application/ld+json whose profile tokens include the ActivityStreams
// namespace IRI.
func isActivityPub(header string) bool {
	for _, part := range strings.Split(header, ",") {
		mediatype, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediatype == graft.MimeActivityJSON {
			return true
		}
		if mediatype != graft.MimeLDJSON {
			continue
		}
		for _, token := range strings.Fields(params["profile"]) {
			if token == graft.NamespaceAS {
				return true
			}
		}
	}
	return false
}

// profilesOf collects the profile parameters of every ld+json entry in a
// media type list, for the response context opt-in check.
func profilesOf(header string) []string {
	var profiles []string
	for _, part := range strings.Split(header, ",") {
		mediatype, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mediatype != graft.MimeLDJSON {
			continue
		}
		if p, ok := params["profile"]; ok {
			profiles = append(profiles, p)
		}
	}
	return profiles
}
