package file

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticShareChecker struct {
	shared bool
	err    error
}

func (c staticShareChecker) IsSharedWith(ctx context.Context, fileID, accountID string) (bool, error) {
	return c.shared, c.err
}

func TestResolveAccess(t *testing.T) {
	tests := []struct {
		name        string
		visibility  string
		ownerID     string
		requesterID string
		shared      bool
		wantView    bool
		wantURL     bool
		wantReason  string
	}{
		{
			name:        "public file, stranger",
			visibility:  VisibilityPublic,
			ownerID:     "owner",
			requesterID: "stranger",
			wantView:    true,
			wantURL:     true,
			wantReason:  ReasonPublic,
		},
		{
			name:        "public file, owner",
			visibility:  VisibilityPublic,
			ownerID:     "owner",
			requesterID: "owner",
			wantView:    true,
			wantURL:     true,
			wantReason:  ReasonPublic,
		},
		{
			// Shared status must not matter for public files.
			name:        "public file, shared recipient",
			visibility:  VisibilityPublic,
			ownerID:     "owner",
			requesterID: "friend",
			shared:      true,
			wantView:    true,
			wantURL:     true,
			wantReason:  ReasonPublic,
		},
		{
			name:        "private file, owner",
			visibility:  VisibilityPrivate,
			ownerID:     "owner",
			requesterID: "owner",
			wantView:    true,
			wantURL:     true,
			wantReason:  ReasonOwner,
		},
		{
			name:        "private file, shared recipient",
			visibility:  VisibilityPrivate,
			ownerID:     "owner",
			requesterID: "friend",
			shared:      true,
			wantView:    true,
			wantURL:     true,
			wantReason:  ReasonShared,
		},
		{
			name:        "private file, stranger",
			visibility:  VisibilityPrivate,
			ownerID:     "owner",
			requesterID: "stranger",
			wantView:    false,
			wantURL:     false,
			wantReason:  ReasonNotShared,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{ID: "f1", OwnerID: tt.ownerID, Visibility: tt.visibility}
			d, err := ResolveAccess(context.Background(), f, tt.requesterID, staticShareChecker{shared: tt.shared})
			require.NoError(t, err)
			assert.Equal(t, tt.wantView, d.CanView)
			assert.Equal(t, tt.wantURL, d.IncludeURL)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestResolveAccessViewAndURLNeverDisagree(t *testing.T) {
	for _, vis := range []string{VisibilityPublic, VisibilityPrivate} {
		for _, shared := range []bool{false, true} {
			f := &File{ID: "f1", OwnerID: "owner", Visibility: vis}
			d, err := ResolveAccess(context.Background(), f, "other", staticShareChecker{shared: shared})
			require.NoError(t, err)
			assert.Equal(t, d.CanView, d.IncludeURL,
				"visibility=%s shared=%v", vis, shared)
		}
	}
}

func TestResolveAccessShareLookupError(t *testing.T) {
	f := &File{ID: "f1", OwnerID: "owner", Visibility: VisibilityPrivate}
	boom := errors.New("boom")
	_, err := ResolveAccess(context.Background(), f, "stranger", staticShareChecker{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestResolveAccessOwnerSkipsShareLookup(t *testing.T) {
	f := &File{ID: "f1", OwnerID: "owner", Visibility: VisibilityPrivate}
	// The checker errors, so reaching it would fail the test.
	d, err := ResolveAccess(context.Background(), f, "owner", staticShareChecker{err: errors.New("must not be called")})
	require.NoError(t, err)
	assert.True(t, d.CanView)
}
