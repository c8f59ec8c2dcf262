package types

import (
	"encoding/json"
	"strings"
)

// NamespaceKind discriminates the three Namespace variants.
type NamespaceKind string

const (
	NamespaceGlobal  NamespaceKind = "global"
	NamespaceProject NamespaceKind = "project"
	NamespaceSession NamespaceKind = "session"
)

// Namespace is a tagged-union scoping value. It is immutable once attached
// to a Memory and is always serialized with an explicit "type" discriminant
// rather than a bare string, so storage-layer queries can inspect structure
// instead of string-comparing the serialized form.
type Namespace struct {
	Kind      NamespaceKind `json:"type"`
	Project   string        `json:"project,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
}

// Global returns the zero-arg Global namespace.
func Global() Namespace {
	return Namespace{Kind: NamespaceGlobal}
}

// NewProject returns a Project(name) namespace.
func NewProject(name string) Namespace {
	return Namespace{Kind: NamespaceProject, Project: name}
}

// NewSession returns a Session(project, sessionID) namespace.
func NewSession(project, sessionID string) Namespace {
	return Namespace{Kind: NamespaceSession, Project: project, SessionID: sessionID}
}

// String renders the canonical ':'-separated textual form, e.g.
// "global", "project:demo", "session:demo:S1".
func (n Namespace) String() string {
	switch n.Kind {
	case NamespaceProject:
		return "project:" + n.Project
	case NamespaceSession:
		return "session:" + n.Project + ":" + n.SessionID
	default:
		return "global"
	}
}

// Parent returns the namespace one level up the Session ⊂ Project ⊂ Global
// hierarchy, and false if n is already Global.
func (n Namespace) Parent() (Namespace, bool) {
	switch n.Kind {
	case NamespaceSession:
		return NewProject(n.Project), true
	case NamespaceProject:
		return Global(), true
	default:
		return Namespace{}, false
	}
}

// Equal reports whether two namespaces denote the same scope.
func (n Namespace) Equal(other Namespace) bool {
	return n.Kind == other.Kind && n.Project == other.Project && n.SessionID == other.SessionID
}

// ParseNamespace parses the canonical textual form plus the legacy '/'
// separator form ("session:foo/bar" style session namespaces). Any
// unparseable input deserializes leniently to Global, per spec.
func ParseNamespace(s string) Namespace {
	s = strings.TrimSpace(s)
	if s == "" || s == "global" {
		return Global()
	}

	// Canonical ':'-separated form.
	parts := strings.Split(s, ":")
	switch parts[0] {
	case "project":
		if len(parts) == 2 && parts[1] != "" {
			return NewProject(parts[1])
		}
	case "session":
		if len(parts) == 3 && parts[1] != "" && parts[2] != "" {
			return NewSession(parts[1], parts[2])
		}
		// Legacy "session:project/sessionID" separator.
		if len(parts) == 2 {
			if proj, sid, ok := strings.Cut(parts[1], "/"); ok && proj != "" && sid != "" {
				return NewSession(proj, sid)
			}
		}
	}

	return Global()
}

// MarshalJSON implements the structured {"type": ..., ...} wire form.
func (n Namespace) MarshalJSON() ([]byte, error) {
	type alias Namespace
	return json.Marshal(alias(n))
}

// UnmarshalJSON implements lenient decoding: any unrecognized or malformed
// payload deserializes to Global rather than failing.
func (n *Namespace) UnmarshalJSON(data []byte) error {
	type alias Namespace
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		*n = Global()
		return nil
	}
	switch NamespaceKind(a.Kind) {
	case NamespaceProject:
		if a.Project == "" {
			*n = Global()
			return nil
		}
		*n = NewProject(a.Project)
	case NamespaceSession:
		if a.Project == "" || a.SessionID == "" {
			*n = Global()
			return nil
		}
		*n = NewSession(a.Project, a.SessionID)
	default:
		*n = Global()
	}
	return nil
}
