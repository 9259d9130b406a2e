// Package community implements discussion groups: communities that profiles
// join, and the posts, attachments, likes and comments inside them.
package community

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultCategory = "General"

type Community struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	Tags        []string  `db:"tags" json:"tags"`
	CreatedBy   uuid.UUID `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Summary is a community with its derived activity figures. LastActivity is
// the newest post time, or the creation time of a community without posts.
type Summary struct {
	*Community
	MemberCount  int       `json:"member_count"`
	LastActivity time.Time `json:"last_activity"`
	Moderators   []string  `json:"moderators"`
}

// MemberCommunity is a community as listed to one of its members.
type MemberCommunity struct {
	*Summary
	JoinedAt    time.Time `json:"joined_at"`
	IsModerator bool      `json:"is_moderator"`
}

type Membership struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CommunityID uuid.UUID `db:"community_id" json:"community_id"`
	MemberID    uuid.UUID `db:"member_id" json:"member_id"`
	IsModerator bool      `db:"is_moderator" json:"is_moderator"`
	JoinedAt    time.Time `db:"joined_at" json:"joined_at"`
}

type Post struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CommunityID uuid.UUID `db:"community_id" json:"community_id"`
	AuthorID    uuid.UUID `db:"author_id" json:"author_id"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	Attachments []*Attachment `db:"-" json:"attachments"`
}

type Attachment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PostID     uuid.UUID `db:"post_id" json:"-"`
	FileKey    string    `db:"file_key" json:"-"`
	FileName   string    `db:"filename" json:"name"`
	FileType   string    `db:"file_type" json:"type"`
	URL        string    `db:"-" json:"url"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

type Comment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PostID     uuid.UUID `db:"post_id" json:"-"`
	AuthorID   uuid.UUID `db:"author_id" json:"author_id"`
	AuthorName string    `db:"-" json:"author_name"`
	AuthorType string    `db:"-" json:"author_type"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FeedPost is a post as shown in a community feed to one viewer.
type FeedPost struct {
	*Post
	AuthorName string     `json:"author_name"`
	AuthorType string     `json:"author_type"`
	Likes      int        `json:"likes"`
	IsLiked    bool       `json:"is_liked"`
	Comments   []*Comment `json:"comments"`
}

// authorName is the full name of a profile, or its username when no name is set.
func authorName(firstName, lastName, username string) string {
	if name := strings.TrimSpace(firstName + " " + lastName); name != "" {
		return name
	}
	return username
}

// normalizeTags trims tags and drops empty and repeated ones.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}
