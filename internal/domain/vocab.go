package domain

import "strings"

// Namespaces used by the ActivityPub surface.
const (
	NamespaceAS  = "https://www.w3.org/ns/activitystreams"
	NamespaceLDP = "http://www.w3.org/ns/ldp"
)

// AS returns the full IRI of an ActivityStreams term.
func AS(name string) string { return NamespaceAS + "#" + name }

// LDP returns the full IRI of an LDP term.
func LDP(name string) string { return NamespaceLDP + "#" + name }

// Verb is the closed, extensible set of federation verbs the dispatch
// engine routes on.
type Verb int

const (
	VerbCreate Verb = iota
	VerbUpdate
	VerbDelete
	VerbFollow
	VerbAdd
	VerbRemove
	VerbLike
	VerbBlock
	VerbUndo
)

var verbNames = map[Verb]string{
	VerbCreate: "Create",
	VerbUpdate: "Update",
	VerbDelete: "Delete",
	VerbFollow: "Follow",
	VerbAdd:    "Add",
	VerbRemove: "Remove",
	VerbLike:   "Like",
	VerbBlock:  "Block",
	VerbUndo:   "Undo",
}

var verbByIRI = func() map[string]Verb {
	m := make(map[string]Verb, len(verbNames))
	for v, name := range verbNames {
		m[AS(name)] = v
	}
	return m
}()

func (v Verb) String() string { return verbNames[v] }

// IRI returns the expanded ActivityStreams IRI of the verb.
func (v Verb) IRI() string { return AS(verbNames[v]) }

// VerbFromIRI resolves an expanded type IRI against the verb table.
func VerbFromIRI(iri string) (Verb, bool) {
	v, ok := verbByIRI[iri]
	return v, ok
}

// Prop enumerates well-known property IRIs. Handlers look properties up here
// instead of assembling IRI strings ad hoc.
type Prop int

const (
	PropActor Prop = iota
	PropObject
	PropTarget
	PropOrigin
	PropAttributedTo
	PropPublished
	PropUpdated
	PropDeleted
	PropItems
	PropTo
	PropCc
	PropBto
	PropBcc
	PropAudience
	PropInbox
	PropOutbox
	PropName
	PropInReplyTo
	PropContext
)

var propIRIs = map[Prop]string{
	PropActor:        AS("actor"),
	PropObject:       AS("object"),
	PropTarget:       AS("target"),
	PropOrigin:       AS("origin"),
	PropAttributedTo: AS("attributedTo"),
	PropPublished:    AS("published"),
	PropUpdated:      AS("updated"),
	PropDeleted:      AS("deleted"),
	PropItems:        AS("items"),
	PropTo:           AS("to"),
	PropCc:           AS("cc"),
	PropBto:          AS("bto"),
	PropBcc:          AS("bcc"),
	PropAudience:     AS("audience"),
	PropInbox:        LDP("inbox"),
	PropOutbox:       AS("outbox"),
	PropName:         AS("name"),
	PropInReplyTo:    AS("inReplyTo"),
	PropContext:      AS("context"),
}

// IRI returns the expanded IRI of the property.
func (p Prop) IRI() string { return propIRIs[p] }

// String returns the compact property name.
func (p Prop) String() string {
	iri := propIRIs[p]
	if i := strings.LastIndexByte(iri, '#'); i >= 0 {
		return iri[i+1:]
	}
	return iri
}

// RecipientProps are the addressing properties merged bidirectionally
// between a Create activity and its embedded objects.
var RecipientProps = []Prop{PropTo, PropCc, PropBto, PropBcc, PropAudience}

// Object type names with dispatch significance.
const (
	TypeTombstone         = "Tombstone"
	TypeCollection        = "Collection"
	TypeOrderedCollection = "OrderedCollection"
	TypePerson            = "Person"
	TypeGroup             = "Group"
)

// Relation names the store can filter current versions by.
const (
	RelationInReplyTo = "inReplyTo"
	RelationContext   = "context"
	RelationActor     = "actor"
)

// IsCollectionType reports whether a single @type value names a collection.
// Both the bare name and the expanded IRI are accepted.
func IsCollectionType(ty string) bool {
	switch ty {
	case TypeCollection, TypeOrderedCollection, AS(TypeCollection), AS(TypeOrderedCollection):
		return true
	}
	return false
}
