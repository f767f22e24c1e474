package storage

import (
	"regexp"

	"github.com/google/uuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// ObjectKey builds a collision-resistant storage key from a random UUID and
// the sanitized original file name. Keys are immutable once assigned to a file.
func ObjectKey(originalName string) string {
	safe := unsafeKeyChars.ReplaceAllString(originalName, "_")
	if safe == "" {
		safe = "file"
	}
	return uuid.NewString() + "_" + safe
}

// ProfilePhotoKey builds the storage key for an account's profile photo,
// namespaced under the owning account so photos never collide with file objects.
func ProfilePhotoKey(accountID, originalName string) string {
	safe := unsafeKeyChars.ReplaceAllString(originalName, "_")
	if safe == "" {
		safe = "photo"
	}
	return "profile/" + accountID + "/" + uuid.NewString() + "_" + safe
}
