package storage

import (
	"maps"

	"github.com/google/uuid"
)

// IDField is the key under which a document's identifier is exposed on the wire.
const IDField = "_id"

// Document is a schemaless record as stored in a jsonb column.
type Document map[string]any

// WithID returns a copy of d carrying id under IDField.
func (d Document) WithID(id uuid.UUID) Document {
	out := make(Document, len(d)+1)
	maps.Copy(out, d)
	out[IDField] = id.String()
	return out
}

// Body returns a copy of d without IDField, ready to be written to the doc column.
func (d Document) Body() Document {
	out := make(Document, len(d))
	maps.Copy(out, d)
	delete(out, IDField)
	return out
}

// ID returns the identifier carried by d, if it is a well-formed UUID.
func (d Document) ID() (uuid.UUID, bool) {
	raw, ok := d[IDField].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
