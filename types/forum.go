package types

// VoteDirection is a user's vote on a post. The zero value means no vote.
type VoteDirection string

const (
	VoteNone VoteDirection = ""
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

func (v VoteDirection) Valid() bool {
	return v == VoteNone || v == VoteUp || v == VoteDown
}

// Delta returns the signed score change for a transition from the previous
// vote to the requested one.
func Delta(prev, next VoteDirection) int {
	score := func(v VoteDirection) int {
		switch v {
		case VoteUp:
			return 1
		case VoteDown:
			return -1
		default:
			return 0
		}
	}
	return score(next) - score(prev)
}

// Post is the normalized shape returned by the upstream forum API.
type Post struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Body      string `json:"body,omitempty"`
	Score     int    `json:"score"`
	Community string `json:"community"`
	Author    string `json:"author"`
	Published string `json:"published"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
	Comments  int    `json:"comments"`
}

// Comment is a flat, path-addressed comment. Path is the dot-separated chain
// of ancestor ids, root first; ParentID and Depth are derived from it.
type Comment struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	Path      string `json:"path,omitempty"`
	Depth     int    `json:"depth"`
	Content   string `json:"content"`
	Score     int    `json:"score"`
	Author    string `json:"author"`
	Published string `json:"published"`
}

// CommentNode is a comment with its ordered replies attached.
type CommentNode struct {
	Comment
	Replies []*CommentNode `json:"replies"`
}

type Community struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// SavedPost is a denormalized snapshot of a post at save time. It is
// intentionally stale: never refreshed from upstream after saving.
type SavedPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Score     int    `json:"score"`
	Community string `json:"community"`
	Author    string `json:"author"`
	Published string `json:"published"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Excerpt   string `json:"excerpt,omitempty"`
	SavedAt   string `json:"saved_at"`
}

// SearchOptions narrows a post search. Field order is part of the cache key
// derivation and must stay stable.
type SearchOptions struct {
	Community string `json:"community,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Page      int    `json:"page,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ForumClient is the upstream collaborator contract. Implementations fail
// with typed errors; callers log and degrade to empty results.
type ForumClient interface {
	SearchPosts(query string, opts SearchOptions) ([]Post, error)
	GetPost(id string) (*Post, error)
	GetComments(postID string, limit int) ([]Comment, error)
	ListCommunities() ([]Community, error)
	GetTrending(limit int) ([]Post, error)
}

// Identity is the verified principal behind a bearer token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Verifier maps a bearer token to an identity. A failed or expired token
// yields (nil, false), never an error.
type Verifier interface {
	Verify(token string) (*Identity, bool)
}
