package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("Quarterly Report (final).pdf")

	idx := strings.Index(key, "_")
	require.Greater(t, idx, 0)
	_, err := uuid.Parse(key[:idx])
	require.NoError(t, err, "key must start with a UUID")
	assert.Equal(t, "Quarterly_Report__final_.pdf", key[idx+1:])
}

func TestObjectKeySanitizesPathTraversal(t *testing.T) {
	key := ObjectKey("../../etc/passwd")
	assert.NotContains(t, key, "/")
	assert.Contains(t, key, ".._.._etc_passwd")
}

func TestObjectKeyEmptyName(t *testing.T) {
	key := ObjectKey("")
	assert.True(t, strings.HasSuffix(key, "_file"))
}

func TestObjectKeyUnique(t *testing.T) {
	assert.NotEqual(t, ObjectKey("a.txt"), ObjectKey("a.txt"))
}

func TestProfilePhotoKey(t *testing.T) {
	key := ProfilePhotoKey("acct-1", "me.png")
	assert.True(t, strings.HasPrefix(key, "profile/acct-1/"))
	assert.True(t, strings.HasSuffix(key, "_me.png"))

	// Traversal attempts stay inside the account's namespace.
	key = ProfilePhotoKey("acct-1", "../../x.png")
	assert.Equal(t, 2, strings.Count(key, "/"))
}
