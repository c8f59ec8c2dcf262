package types

// ExtractedEntity is a named entity surfaced during linking as a secondary
// candidate-discovery signal (people, components, files, concepts). It is
// not a first-class stored/queryable type — the closed Link.LinkType set in
// types.go is the only persisted edge vocabulary — but the Linker uses
// entity overlap between two memories' extracted entities, alongside tag
// Jaccard, when proposing candidate pairs.
type ExtractedEntity struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}
