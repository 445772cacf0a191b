package domain

import (
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const DraftPrefix = "draft-"

var legacyDraftID = regexp.MustCompile(`^[A-Z0-9]+-\d{13,}-\d{3}$`)

// IsDraftID reports whether id is a temporary identifier issued on the device.
func IsDraftID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, DraftPrefix) {
		return true
	}
	return legacyDraftID.MatchString(id)
}

// NewDraftID issues a sortable temporary identifier.
func NewDraftID(now time.Time) string {
	return DraftPrefix + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
