package community

import (
	"context"

	"github.com/google/uuid"
)

type CommunityRepository interface {
	Create(ctx context.Context, c *Community) error
	GetByID(ctx context.Context, id uuid.UUID) (*Community, error)
	// Summary returns the community with member count, last activity and
	// moderator usernames.
	Summary(ctx context.Context, id uuid.UUID) (*Summary, error)
	// List returns every community summary, newest first.
	List(ctx context.Context) ([]*Summary, error)
	// ListByMember returns the communities a profile belongs to, latest join first.
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]*MemberCommunity, error)
}

type MembershipRepository interface {
	// Create fails with a conflict when the profile is already a member.
	Create(ctx context.Context, m *Membership) error
	Exists(ctx context.Context, communityID, memberID uuid.UUID) (bool, error)
	// Delete reports whether a membership was removed.
	Delete(ctx context.Context, communityID, memberID uuid.UUID) (bool, error)
}

type PostRepository interface {
	Create(ctx context.Context, p *Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*Post, error)
	UpdateContent(ctx context.Context, p *Post) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Feed returns a community's posts, newest first, with author, like count
	// and whether viewerID liked each one.
	Feed(ctx context.Context, communityID, viewerID uuid.UUID) ([]*FeedPost, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	ListByPosts(ctx context.Context, postIDs []uuid.UUID) ([]*Attachment, error)
}

type LikeRepository interface {
	// Create fails with a conflict when the profile already liked the post.
	Create(ctx context.Context, postID, profileID uuid.UUID) error
	// Delete reports whether a like was removed.
	Delete(ctx context.Context, postID, profileID uuid.UUID) (bool, error)
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	// ListByPosts returns comments with author details, oldest first.
	ListByPosts(ctx context.Context, postIDs []uuid.UUID) ([]*Comment, error)
}
