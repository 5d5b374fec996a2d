package domain

// Status is the fixed idea lifecycle stage.
type Status string

const (
	StatusIdea       Status = "idea"
	StatusPreDraft   Status = "pre-draft"
	StatusDraft      Status = "draft"
	StatusCommit     Status = "commit"
	StatusInProgress Status = "in-progress"
	StatusTest       Status = "test"
	StatusFinish     Status = "finish"
	StatusArchive    Status = "archive"
)

// nextStage holds the single forward edge per status. Archive is reachable
// from any state and finish/archive have no forward edge.
var nextStage = map[Status]Status{
	StatusIdea:       StatusPreDraft,
	StatusPreDraft:   StatusDraft,
	StatusDraft:      StatusCommit,
	StatusCommit:     StatusInProgress,
	StatusInProgress: StatusTest,
	StatusTest:       StatusFinish,
}

// Valid reports whether s is one of the eight lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusIdea, StatusPreDraft, StatusDraft, StatusCommit,
		StatusInProgress, StatusTest, StatusFinish, StatusArchive:
		return true
	}
	return false
}

// Next returns the forward edge for s, if any.
func (s Status) Next() (Status, bool) {
	n, ok := nextStage[s]
	return n, ok
}

// CanTransition reports whether from -> to is a legal lifecycle edge:
// the single forward edge, or any state -> archive.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusArchive {
		return from != StatusArchive
	}
	return nextStage[from] == to
}

// ActivityType classifies an immutable engagement fact.
type ActivityType string

const (
	ActivityLike         ActivityType = "LIKE"
	ActivityComment      ActivityType = "COMMENT"
	ActivityEdit         ActivityType = "EDIT"
	ActivityStatusChange ActivityType = "STATUS_CHANGE"
)

// TriggerType records what caused a progression.
type TriggerType string

const (
	TriggerAutoProgression TriggerType = "AUTO_PROGRESSION"
	TriggerLikeThreshold   TriggerType = "LIKE_THRESHOLD"
	TriggerManual          TriggerType = "MANUAL"
)

// DelegationReason records why ownership reassignment was proposed.
type DelegationReason string

const (
	DelegationInactivity     DelegationReason = "INACTIVITY"
	DelegationManual         DelegationReason = "MANUAL"
	DelegationTopContributor DelegationReason = "TOP_CONTRIBUTOR"
)

// DelegationStatus is the delegation handshake state.
type DelegationStatus string

const (
	DelegationPending  DelegationStatus = "pending"
	DelegationAccepted DelegationStatus = "accepted"
	DelegationDeclined DelegationStatus = "declined"
)

// NotificationType classifies sink messages.
type NotificationType string

const (
	NotifyStatusChange  NotificationType = "STATUS_CHANGE"
	NotifyDelegation    NotificationType = "DELEGATION"
	NotifyLikeMilestone NotificationType = "LIKE_MILESTONE"
	NotifyComment       NotificationType = "COMMENT"
	NotifyCollaboration NotificationType = "COLLABORATION"
)

type User struct {
	ID            string  `json:"id"`
	WalletAddress string  `json:"wallet_address"`
	Nickname      *string `json:"nickname,omitempty"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	Bio           *string `json:"bio,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Idea struct {
	ID            string  `json:"id"`
	OwnerUserID   *string `json:"owner_user_id,omitempty"`
	Title         string  `json:"title"`
	Target        string  `json:"target"`
	Why           string  `json:"why"`
	What          string  `json:"what"`
	How           string  `json:"how"`
	Impact        string  `json:"impact"`
	Status        Status  `json:"status" enum:"idea,pre-draft,draft,commit,in-progress,test,finish,archive"`
	LikesCount    int     `json:"likes_count"`
	CommentsCount int     `json:"comments_count"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Like struct {
	ID        string `json:"id"`
	IdeaID    string `json:"idea_id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	IdeaID    string `json:"idea_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Collaboration struct {
	ID        string  `json:"id"`
	IdeaID    string  `json:"idea_id"`
	UserID    string  `json:"user_id"`
	Role      string  `json:"role" enum:"contributor,co-owner,mentor"`
	Status    string  `json:"status" enum:"pending,accepted,declined"`
	Message   *string `json:"message,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Activity is an immutable engagement fact, append-only from the engine's
// perspective.
type Activity struct {
	ID        int64        `json:"id"`
	UserID    string       `json:"user_id"`
	IdeaID    string       `json:"idea_id"`
	Type      ActivityType `json:"activity_type"`
	CreatedAt string       `json:"created_at" format:"date-time"`
}

// Progression is one append-only audit entry for a status change.
type Progression struct {
	ID          int64       `json:"id"`
	IdeaID      string      `json:"idea_id"`
	FromStatus  *Status     `json:"from_status,omitempty"`
	ToStatus    Status      `json:"to_status"`
	TriggerType TriggerType `json:"trigger_type"`
	TriggerData string      `json:"trigger_data,omitempty"`
	TriggeredBy *string     `json:"triggered_by,omitempty"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
}

type Delegation struct {
	ID          string           `json:"id"`
	IdeaID      string           `json:"idea_id"`
	FromUserID  *string          `json:"from_user_id,omitempty"`
	ToUserID    string           `json:"to_user_id"`
	Reason      DelegationReason `json:"reason"`
	Status      DelegationStatus `json:"status" enum:"pending,accepted,declined"`
	DelegatedAt string           `json:"delegated_at" format:"date-time"`
	AcceptedAt  *string          `json:"accepted_at,omitempty" format:"date-time"`
}

type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	IdeaID         *string          `json:"idea_id,omitempty"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ActionRequired bool             `json:"action_required"`
	DataJSON       *string          `json:"data_json,omitempty"`
	ReadAt         *string          `json:"read_at,omitempty" format:"date-time"`
	CreatedAt      string           `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
