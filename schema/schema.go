// Package schema models versioned form definitions: schemata, their
// attributes, and choice codes. A logical form is a lineage of schema rows
// sharing one name, each row one published (or draft) version.
package schema

import (
	"time"

	"github.com/cordate/datastore/errors"
)

// Type is the closed set of attribute value types. Each type maps to its own
// physical value table.
type Type string

const (
	Boolean  Type = "boolean"
	Integer  Type = "integer"
	Decimal  Type = "decimal"
	String   Type = "string"
	Text     Type = "text"
	Date     Type = "date"
	Datetime Type = "datetime"
	Object   Type = "object"
	TypeChoice Type = "choice"
	Blob     Type = "blob"
)

// Types lists every supported attribute type in display order.
var Types = []Type{
	Boolean, Integer, Decimal, String, Text,
	Date, Datetime, Object, TypeChoice, Blob,
}

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// State is the publication state of a schema version.
type State string

const (
	StateDraft     State = "draft"
	StatePublished State = "published"
)

// Storage is the physical storage mode of a schema.
type Storage string

const (
	StorageEAV      Storage = "eav"
	StorageResource Storage = "resource"
	StorageTable    Storage = "table"
)

// Schema is one version of a form definition. Rows sharing a Name form a
// lineage ordered by PublishDate; a nil PublishDate marks an unpublished
// draft. A published version is immutable except for its RetractDate.
type Schema struct {
	ID          int64
	Name        string
	Title       string
	Description string
	Storage     Storage
	State       State
	PublishDate *time.Time
	RetractDate *time.Time
	IsInline    bool

	// Bases holds declared parent schemata. Single inheritance only:
	// more than one base is rejected at put time.
	Bases []*Schema

	// Attributes in display order. Names are unique within the version.
	Attributes []*Attribute

	CreateDate   time.Time
	CreateUserID int64
	ModifyDate   time.Time
	ModifyUserID int64
}

// Base returns the single declared base schema, or nil.
func (s *Schema) Base() *Schema {
	if len(s.Bases) == 0 {
		return nil
	}
	return s.Bases[0]
}

// Published reports whether this version is published and not retracted.
func (s *Schema) Published() bool {
	return s.PublishDate != nil && s.RetractDate == nil
}

// Attribute returns the attribute with the given logical name, or nil.
func (s *Schema) Attribute(name string) *Attribute {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Validate checks the shape requirements for inserting a new version.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("schema name is required")
	}
	if s.Title == "" {
		return errors.Newf("schema %q is missing a title", s.Name)
	}
	if len(s.Bases) > 1 {
		return errors.Wrapf(errors.ErrMultipleBases, "schema %q declares %d bases", s.Name, len(s.Bases))
	}
	for _, a := range s.Attributes {
		if err := a.Validate(); err != nil {
			return errors.Wrapf(err, "schema %q", s.Name)
		}
	}
	return nil
}

// Attribute is one field definition within one schema version. Attributes are
// never mutated after the owning schema is published; new versions get new
// rows.
type Attribute struct {
	ID          int64
	SchemaID    int64
	Name        string
	Title       string
	Description string
	Type        Type

	// Checksum is the 32-character content hash persisted with the row.
	// Consumers must trust the stored value, never recompute it themselves.
	Checksum string

	IsCollection bool
	IsRequired   bool

	// IsPrivate marks PHI-sensitive fields redacted in de-identified reports.
	IsPrivate bool

	// ObjectSchema is set iff Type == Object.
	ObjectSchema *Schema

	ValueMin      *int
	ValueMax      *int
	CollectionMin *int
	CollectionMax *int

	// Validator is an optional regular expression values must match.
	Validator string

	// Order is the display/report position, unique within the schema.
	Order int

	Choices []*Choice

	RemoveDate   *time.Time
	CreateDate   time.Time
	CreateUserID int64
	ModifyDate   time.Time
	ModifyUserID int64
}

// Validate checks the shape requirements for persisting the attribute.
func (a *Attribute) Validate() error {
	if a.Name == "" {
		return errors.New("attribute name is required")
	}
	if a.Title == "" {
		return errors.Newf("attribute %q is missing a title", a.Name)
	}
	if !a.Type.Valid() {
		return errors.Newf("attribute %q has unknown type %q", a.Name, a.Type)
	}
	if (a.Type == Object) != (a.ObjectSchema != nil) {
		return errors.Newf("attribute %q: object_schema is set iff type is object", a.Name)
	}
	return nil
}

// Choice returns the choice with the given stored code, or nil.
func (a *Attribute) Choice(name string) *Choice {
	for _, c := range a.Choices {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Choice is one allowed value for a choice-typed attribute. Name is the
// stored code (numeric-string), Title the display label.
type Choice struct {
	ID          int64
	AttributeID int64
	Name        string
	Title       string
	Order       int

	CreateDate   time.Time
	CreateUserID int64
	ModifyDate   time.Time
	ModifyUserID int64
}
