package community

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
)

// AttachmentPrefix scopes post attachments by community id.
const AttachmentPrefix = "community-attachments"

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	communities CommunityRepository
	memberships MembershipRepository
	posts       PostRepository
	attachments AttachmentRepository
	likes       LikeRepository
	comments    CommentRepository
	tx          TxRunner
	blobs       blobstore.BlobStore
	logger      zerolog.Logger
}

func NewService(
	communities CommunityRepository,
	memberships MembershipRepository,
	posts PostRepository,
	attachments AttachmentRepository,
	likes LikeRepository,
	comments CommentRepository,
	tx TxRunner,
	blobs blobstore.BlobStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		communities: communities,
		memberships: memberships,
		posts:       posts,
		attachments: attachments,
		likes:       likes,
		comments:    comments,
		tx:          tx,
		blobs:       blobs,
		logger:      logger.With().Str("component", "community").Logger(),
	}
}

var (
	errPostNotFound = apperr.NotFound("Post not found")
	errNotAuthor    = apperr.NotFound("Post not found or not authorized")
)

// -- Communities --

type CreateCommunityInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	IsPrivate   bool     `json:"is_private"`
	Tags        []string `json:"tags"`
}

func (s *Service) ListCommunities(ctx context.Context) ([]*Summary, error) {
	return s.communities.List(ctx)
}

func (s *Service) Community(ctx context.Context, id uuid.UUID) (*Summary, error) {
	return s.communities.Summary(ctx, id)
}

func (s *Service) MemberCommunities(ctx context.Context, p auth.Principal) ([]*MemberCommunity, error) {
	return s.communities.ListByMember(ctx, p.ProfileID)
}

// CreateCommunity stores the community and makes its creator a moderator member.
func (s *Service) CreateCommunity(ctx context.Context, p auth.Principal, in CreateCommunityInput) (*Summary, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}
	c := &Community{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		IsPrivate:   in.IsPrivate,
		Tags:        normalizeTags(in.Tags),
		CreatedBy:   p.ProfileID,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.communities.Create(ctx, c); err != nil {
			return err
		}
		return s.memberships.Create(ctx, &Membership{CommunityID: c.ID, MemberID: p.ProfileID, IsModerator: true})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("community_id", c.ID.String()).Str("created_by", p.ProfileID.String()).Msg("community created")

	return &Summary{
		Community:    c,
		MemberCount:  1,
		LastActivity: c.CreatedAt,
		Moderators:   []string{p.Username},
	}, nil
}

func (s *Service) Join(ctx context.Context, p auth.Principal, communityID uuid.UUID) (*Community, *Membership, error) {
	c, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return nil, nil, err
	}
	m := &Membership{CommunityID: c.ID, MemberID: p.ProfileID}
	if err := s.memberships.Create(ctx, m); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, nil, apperr.Validation("Already a member of this community")
		}
		return nil, nil, err
	}
	return c, m, nil
}

func (s *Service) Leave(ctx context.Context, p auth.Principal, communityID uuid.UUID) (*Community, error) {
	c, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	removed, err := s.memberships.Delete(ctx, c.ID, p.ProfileID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperr.Validation("Not a member of this community")
	}
	return c, nil
}

// -- Posts --

// Feed returns the community's posts with their comments and attachments.
func (s *Service) Feed(ctx context.Context, p auth.Principal, communityID uuid.UUID) ([]*FeedPost, error) {
	if _, err := s.communities.GetByID(ctx, communityID); err != nil {
		return nil, err
	}
	feed, err := s.posts.Feed(ctx, communityID, p.ProfileID)
	if err != nil || len(feed) == 0 {
		return feed, err
	}

	byID := make(map[uuid.UUID]*FeedPost, len(feed))
	ids := make([]uuid.UUID, 0, len(feed))
	for _, fp := range feed {
		fp.Attachments = []*Attachment{}
		fp.Comments = []*Comment{}
		byID[fp.ID] = fp
		ids = append(ids, fp.ID)
	}

	atts, err := s.attachments.ListByPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range atts {
		if fp, ok := byID[a.PostID]; ok {
			a.URL = blobstore.URL(a.FileKey)
			fp.Attachments = append(fp.Attachments, a)
		}
	}
	comments, err := s.comments.ListByPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if fp, ok := byID[c.PostID]; ok {
			fp.Comments = append(fp.Comments, c)
		}
	}
	return feed, nil
}

// CreatePost publishes a post by a community member. Files are stored before
// the post row and removed again when the post cannot be saved.
func (s *Service) CreatePost(ctx context.Context, p auth.Principal, communityID uuid.UUID, content string, files []*multipart.FileHeader) (*Post, error) {
	if _, err := s.communities.GetByID(ctx, communityID); err != nil {
		return nil, err
	}
	member, err := s.memberships.Exists(ctx, communityID, p.ProfileID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("You must be a member of this community to post")
	}
	content = strings.TrimSpace(content)
	if content == "" && len(files) == 0 {
		return nil, apperr.Validation("content is required")
	}

	post := &Post{CommunityID: communityID, AuthorID: p.ProfileID, Content: content, Attachments: []*Attachment{}}
	for _, fh := range files {
		obj, err := blobstore.PutFormFile(ctx, s.blobs, AttachmentPrefix+"/"+communityID.String(), fh)
		if err != nil {
			s.dropAttachments(ctx, post.Attachments)
			return nil, blobstore.UploadError(err)
		}
		post.Attachments = append(post.Attachments, &Attachment{
			FileKey:  obj.Key,
			FileName: obj.FileName,
			FileType: obj.ContentType,
			URL:      blobstore.URL(obj.Key),
		})
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.posts.Create(ctx, post); err != nil {
			return err
		}
		for _, a := range post.Attachments {
			a.PostID = post.ID
			if err := s.attachments.Create(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.dropAttachments(ctx, post.Attachments)
		return nil, err
	}
	return post, nil
}

// authoredPost loads a post written by the caller. Anyone else's post is
// reported as missing.
func (s *Service) authoredPost(ctx context.Context, p auth.Principal, postID uuid.UUID) (*Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errNotAuthor
	}
	if err != nil {
		return nil, err
	}
	if post.AuthorID != p.ProfileID {
		return nil, errNotAuthor
	}
	return post, nil
}

func (s *Service) UpdatePost(ctx context.Context, p auth.Principal, postID uuid.UUID, content string) (*Post, error) {
	post, err := s.authoredPost(ctx, p, postID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	post.Content = content
	if err := s.posts.UpdateContent(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes the post with its likes and comments, then its stored files.
func (s *Service) DeletePost(ctx context.Context, p auth.Principal, postID uuid.UUID) error {
	post, err := s.authoredPost(ctx, p, postID)
	if err != nil {
		return err
	}
	atts, err := s.attachments.ListByPosts(ctx, []uuid.UUID{post.ID})
	if err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return err
	}
	s.dropAttachments(ctx, atts)
	return nil
}

func (s *Service) dropAttachments(ctx context.Context, atts []*Attachment) {
	for _, a := range atts {
		if err := s.blobs.Delete(ctx, a.FileKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("key", a.FileKey).Msg("attachment blob not removed")
		}
	}
}

func (s *Service) existingPost(ctx context.Context, postID uuid.UUID) (*Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errPostNotFound
	}
	return post, err
}

// -- Likes & Comments --

func (s *Service) Like(ctx context.Context, p auth.Principal, postID uuid.UUID) error {
	post, err := s.existingPost(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.likes.Create(ctx, post.ID, p.ProfileID); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return apperr.Validation("Post already liked")
		}
		return err
	}
	return nil
}

func (s *Service) Unlike(ctx context.Context, p auth.Principal, postID uuid.UUID) error {
	post, err := s.existingPost(ctx, postID)
	if err != nil {
		return err
	}
	removed, err := s.likes.Delete(ctx, post.ID, p.ProfileID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.Validation("Post not liked")
	}
	return nil
}

func (s *Service) AddComment(ctx context.Context, p auth.Principal, postID uuid.UUID, content string) (*Comment, error) {
	post, err := s.existingPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	c := &Comment{
		PostID:     post.ID,
		AuthorID:   p.ProfileID,
		AuthorName: p.Username,
		AuthorType: string(p.Role),
		Content:    content,
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
