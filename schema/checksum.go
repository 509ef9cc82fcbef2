package schema

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"strconv"
)

// ChecksumFor computes the 32-character content hash for an attribute owned
// by the named schema. Two attribute rows across different publish dates with
// identical checksums are "the same field, unchanged" for report-column
// consolidation.
//
// Only semantically meaningful fields participate: order position and the
// choice set are deliberately excluded, so reorders and choice edits alone do
// not force a new report column.
func ChecksumFor(schemaName, schemaDescription string, a *Attribute) string {
	objectSchemaID := ""
	if a.ObjectSchema != nil && a.ObjectSchema.ID != 0 {
		objectSchemaID = strconv.FormatInt(a.ObjectSchema.ID, 10)
	}

	h := md5.New()
	for _, part := range []string{
		schemaName,
		schemaDescription,
		a.Name,
		a.Title,
		a.Description,
		string(a.Type),
		strconv.FormatBool(a.IsCollection),
		strconv.FormatBool(a.IsRequired),
		objectSchemaID,
	} {
		io.WriteString(h, part)
		// separator so adjacent fields cannot collide by concatenation
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
