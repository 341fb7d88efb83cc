package domain

import "context"

// Identity is the relationship collaborator's view of a subject as seen by a
// specific viewer: the stable pseudonym plus the real name when the subject's
// own preference permits exposing it.
type Identity struct {
	AnonymousName     string  `json:"anonymous_name"`
	RealNameIfAllowed *string `json:"real_name_if_allowed"`
}

// RelationshipService is the external social-graph / clinical-engagement
// collaborator. The core only asks whether edges are valid; it never mutates
// relationship state.
type RelationshipService interface {
	ValidateMutualFollow(ctx context.Context, idA, idB string) (bool, error)
	CheckTherapySessionAccess(ctx context.Context, therapistID, clientID string) (bool, error)
	GetIdentity(ctx context.Context, subjectID, viewerID string) (*Identity, error)
	// NotifyRoomCreated is fire-and-forget from the caller's perspective; it is
	// only ever invoked through the async notify queue.
	NotifyRoomCreated(ctx context.Context, roomID string, participantIDs []string) error
}

// MediaSession is the routing collaborator's handle for a created session.
type MediaSession struct {
	SessionID string `json:"session_id"`
}

// ConnectionDescriptor carries transport parameters for a joining client. The
// core forwards it verbatim; it owns no media state.
type ConnectionDescriptor map[string]any

// MediaRoutingService is the external SFU control plane.
type MediaRoutingService interface {
	CreateSession(ctx context.Context, participantIDs []string, callType CallType, metadata map[string]string) (*MediaSession, error)
	Join(ctx context.Context, sessionID, userID string, capabilities map[string]any) (ConnectionDescriptor, error)
	End(ctx context.Context, sessionID, endedBy string) error
	CreateTransport(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error)
	Produce(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error)
	Consume(ctx context.Context, sessionID, userID string, params map[string]any) (map[string]any, error)
}

// DirectoryEntry is a principal-directory lookup result.
type DirectoryEntry struct {
	ID     string `json:"id"`
	Role   Role   `json:"role"`
	Status string `json:"status"`
}

// PrincipalDirectory validates that principal ids resolve to real, active
// principals.
type PrincipalDirectory interface {
	Validate(ctx context.Context, id string) (*DirectoryEntry, error)
}

// Notification is a single outbound notification request.
type Notification struct {
	Type        string         `json:"type"`
	RecipientID string         `json:"recipient_id"`
	Variables   map[string]any `json:"variables,omitempty"`
	Priority    string         `json:"priority,omitempty"`
}

// NotificationDispatcher delivers notifications. Failures are logged by the
// notify queue and never propagated to the operation that triggered them.
type NotificationDispatcher interface {
	Send(ctx context.Context, n Notification) error
	SendBulk(ctx context.Context, ns []Notification) error
}
