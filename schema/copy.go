package schema

import "time"

// Copy deep-clones a schema version into a fresh unpublished draft: all
// attributes and choices are cloned, recursing into object sub-schemata.
// Identity and lifecycle metadata (ids, publish/retract dates, create/modify
// stamps) are excluded so the clone can become the next version.
func (s *Schema) Copy() *Schema {
	clone := &Schema{
		Name:        s.Name,
		Title:       s.Title,
		Description: s.Description,
		Storage:     s.Storage,
		State:       StateDraft,
		IsInline:    s.IsInline,
	}
	for _, base := range s.Bases {
		clone.Bases = append(clone.Bases, base.Copy())
	}
	for _, a := range s.Attributes {
		clone.Attributes = append(clone.Attributes, a.copyInto())
	}
	return clone
}

func (a *Attribute) copyInto() *Attribute {
	clone := &Attribute{
		Name:          a.Name,
		Title:         a.Title,
		Description:   a.Description,
		Type:          a.Type,
		IsCollection:  a.IsCollection,
		IsRequired:    a.IsRequired,
		IsPrivate:     a.IsPrivate,
		ValueMin:      copyIntPtr(a.ValueMin),
		ValueMax:      copyIntPtr(a.ValueMax),
		CollectionMin: copyIntPtr(a.CollectionMin),
		CollectionMax: copyIntPtr(a.CollectionMax),
		Validator:     a.Validator,
		Order:         a.Order,
	}
	if a.ObjectSchema != nil {
		clone.ObjectSchema = a.ObjectSchema.Copy()
	}
	for _, c := range a.Choices {
		clone.Choices = append(clone.Choices, &Choice{
			Name:  c.Name,
			Title: c.Title,
			Order: c.Order,
		})
	}
	return clone
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DatePtr is a convenience for building publish/retract dates in callers and
// tests.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}
