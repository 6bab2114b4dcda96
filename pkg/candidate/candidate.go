// Package candidate defines the immutable artifacts a refinement session
// iterates over. Each concrete kind (story structure, scene list, generated
// video) carries the same bookkeeping via Meta; candidates are replaced, never
// edited, so a session's history stays auditable.
package candidate

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the artifact variant under refinement.
type Kind string

const (
	KindStory     Kind = "story"
	KindSceneList Kind = "scene_list"
	KindVideo     Kind = "video"
)

// Candidate is the minimal capability the refinement loop needs from an
// artifact. Concrete types embed Meta and add their structured payload.
type Candidate interface {
	// Kind returns the artifact variant.
	Kind() Kind

	// ID returns the stable identifier shared by all versions of an artifact.
	ID() string

	// Version returns the 1-based refinement version.
	Version() int

	// Hash returns a short content hash.
	Hash() string

	// Body returns the canonical textual form used for judging.
	Body() string
}

// Meta carries the bookkeeping shared by all candidate kinds.
type Meta struct {
	ArtifactID string            `json:"id"`
	Revision   int               `json:"version"`
	BodyText   string            `json:"body"`
	ArtifactK  Kind              `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	BodyHash   string            `json:"hash"`
}

// NewMeta creates metadata for a first-version candidate.
func NewMeta(kind Kind, body string) Meta {
	m := Meta{
		ArtifactID: uuid.NewString(),
		Revision:   1,
		BodyText:   body,
		ArtifactK:  kind,
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now().UTC(),
	}
	m.BodyHash = hashBody(kind, body)
	return m
}

// NextVersion creates metadata for a refined replacement of this candidate.
// The artifact ID is preserved; the version advances.
func (m Meta) NextVersion(body string) Meta {
	next := Meta{
		ArtifactID: m.ArtifactID,
		Revision:   m.Revision + 1,
		BodyText:   body,
		ArtifactK:  m.ArtifactK,
		Metadata:   copyMetadata(m.Metadata),
		CreatedAt:  time.Now().UTC(),
	}
	next.BodyHash = hashBody(m.ArtifactK, body)
	return next
}

// WithMetadata returns a copy of the metadata with an extra key set.
func (m Meta) WithMetadata(key, value string) Meta {
	next := m
	next.Metadata = copyMetadata(m.Metadata)
	next.Metadata[key] = value
	return next
}

// Kind returns the artifact variant.
func (m Meta) Kind() Kind { return m.ArtifactK }

// ID returns the stable artifact identifier.
func (m Meta) ID() string { return m.ArtifactID }

// Version returns the 1-based refinement version.
func (m Meta) Version() int { return m.Revision }

// Hash returns the short content hash.
func (m Meta) Hash() string { return m.BodyHash }

// Body returns the canonical textual form used for judging.
func (m Meta) Body() string { return m.BodyText }

func hashBody(kind Kind, body string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
