package file

import "context"

// ShareChecker answers whether a file has been shared with an account.
// Satisfied by *share.Service.
type ShareChecker interface {
	IsSharedWith(ctx context.Context, fileID, accountID string) (bool, error)
}

// Decision is the outcome of the access policy for one (file, requester)
// pair. The same decision governs both metadata views and download-URL
// generation, so the two can never disagree.
type Decision struct {
	CanView    bool
	IncludeURL bool
	Reason     string
}

// Access reasons surfaced to callers.
const (
	ReasonPublic    = "File is public. URL is available."
	ReasonOwner     = "File is private. Only you can view and access the URL."
	ReasonShared    = "File is private but shared with you. URL is available."
	ReasonNotShared = "This file is private and cannot be viewed or accessed by other users."
)

// ResolveAccess decides whether requester may view f. The branch order is
// fixed: public short-circuits, then ownership, then sharing, then deny.
func ResolveAccess(ctx context.Context, f *File, requesterID string, shares ShareChecker) (Decision, error) {
	if f.Visibility == VisibilityPublic {
		return Decision{CanView: true, IncludeURL: true, Reason: ReasonPublic}, nil
	}
	if f.OwnerID == requesterID {
		return Decision{CanView: true, IncludeURL: true, Reason: ReasonOwner}, nil
	}
	shared, err := shares.IsSharedWith(ctx, f.ID, requesterID)
	if err != nil {
		return Decision{}, err
	}
	if shared {
		return Decision{CanView: true, IncludeURL: true, Reason: ReasonShared}, nil
	}
	return Decision{Reason: ReasonNotShared}, nil
}
