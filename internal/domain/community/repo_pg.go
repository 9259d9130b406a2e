package community

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== Community Repository ===========

type communityRepoPG struct{ pool db.DBTX }

func NewCommunityRepoPG(pool db.DBTX) CommunityRepository {
	return &communityRepoPG{pool: pool}
}

func (r *communityRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const communityCols = `c.id, c.name, c.description, c.category, c.is_private, c.tags,
	c.created_by, c.created_at, c.updated_at`

// summaryCols follow communityCols in summary queries.
const summaryCols = `
	(SELECT COUNT(*) FROM community_membership m WHERE m.community_id = c.id),
	COALESCE((SELECT MAX(p.created_at) FROM community_post p WHERE p.community_id = c.id), c.created_at),
	ARRAY(SELECT pr.username FROM community_membership m JOIN profile pr ON pr.id = m.member_id
		WHERE m.community_id = c.id AND m.is_moderator ORDER BY m.joined_at)`

func (c *Community) scanDest() []interface{} {
	return []interface{}{&c.ID, &c.Name, &c.Description, &c.Category, &c.IsPrivate, &c.Tags,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt}
}

func scanSummary(row pgx.Row, extra ...interface{}) (*Summary, error) {
	s := &Summary{Community: &Community{}}
	dest := append(s.Community.scanDest(), &s.MemberCount, &s.LastActivity, &s.Moderators)
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, db.Translate(err, "Community")
	}
	return s, nil
}

func (r *communityRepoPG) Create(ctx context.Context, c *Community) error {
	c.ID = uuid.New()
	if c.Tags == nil {
		c.Tags = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO community (id, name, description, category, is_private, tags, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description, c.Category, c.IsPrivate, c.Tags, c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return db.Translate(err, "Community")
}

func (r *communityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Community, error) {
	var c Community
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+communityCols+` FROM community c WHERE c.id = $1`, id).
		Scan(c.scanDest()...)
	if err != nil {
		return nil, db.Translate(err, "Community")
	}
	return &c, nil
}

func (r *communityRepoPG) Summary(ctx context.Context, id uuid.UUID) (*Summary, error) {
	return scanSummary(r.conn(ctx).QueryRow(ctx,
		`SELECT `+communityCols+`,`+summaryCols+` FROM community c WHERE c.id = $1`, id))
}

func (r *communityRepoPG) List(ctx context.Context) ([]*Summary, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+communityCols+`,`+summaryCols+` FROM community c ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Summary, error) {
		return scanSummary(row)
	})
}

func (r *communityRepoPG) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*MemberCommunity, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+communityCols+`,`+summaryCols+`, mm.joined_at, mm.is_moderator
		FROM community c
		JOIN community_membership mm ON mm.community_id = c.id
		WHERE mm.member_id = $1
		ORDER BY mm.joined_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*MemberCommunity, error) {
		mc := &MemberCommunity{}
		s, err := scanSummary(row, &mc.JoinedAt, &mc.IsModerator)
		if err != nil {
			return nil, err
		}
		mc.Summary = s
		return mc, nil
	})
}

// =========== Membership Repository ===========

type membershipRepoPG struct{ pool db.DBTX }

func NewMembershipRepoPG(pool db.DBTX) MembershipRepository {
	return &membershipRepoPG{pool: pool}
}

func (r *membershipRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *membershipRepoPG) Create(ctx context.Context, m *Membership) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO community_membership (id, community_id, member_id, is_moderator)
		VALUES ($1,$2,$3,$4)
		RETURNING joined_at`,
		m.ID, m.CommunityID, m.MemberID, m.IsModerator,
	).Scan(&m.JoinedAt)
	return db.Translate(err, "Membership")
}

func (r *membershipRepoPG) Exists(ctx context.Context, communityID, memberID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM community_membership WHERE community_id = $1 AND member_id = $2)`,
		communityID, memberID).Scan(&ok)
	return ok, err
}

func (r *membershipRepoPG) Delete(ctx context.Context, communityID, memberID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM community_membership WHERE community_id = $1 AND member_id = $2`, communityID, memberID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// =========== Post Repository ===========

type postRepoPG struct{ pool db.DBTX }

func NewPostRepoPG(pool db.DBTX) PostRepository {
	return &postRepoPG{pool: pool}
}

func (r *postRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const postCols = `p.id, p.community_id, p.author_id, p.content, p.created_at, p.updated_at`

func (p *Post) scanDest() []interface{} {
	return []interface{}{&p.ID, &p.CommunityID, &p.AuthorID, &p.Content, &p.CreatedAt, &p.UpdatedAt}
}

func (r *postRepoPG) Create(ctx context.Context, p *Post) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO community_post (id, community_id, author_id, content)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		p.ID, p.CommunityID, p.AuthorID, p.Content,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Translate(err, "Post")
}

func (r *postRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Post, error) {
	var p Post
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+postCols+` FROM community_post p WHERE p.id = $1`, id).
		Scan(p.scanDest()...)
	if err != nil {
		return nil, db.Translate(err, "Post")
	}
	return &p, nil
}

func (r *postRepoPG) UpdateContent(ctx context.Context, p *Post) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE community_post SET content = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Content,
	).Scan(&p.UpdatedAt)
	return db.Translate(err, "Post")
}

func (r *postRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM community_post WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Post not found")
	}
	return nil
}

func (r *postRepoPG) Feed(ctx context.Context, communityID, viewerID uuid.UUID) ([]*FeedPost, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+postCols+`, pr.first_name, pr.last_name, pr.username, pr.role,
			(SELECT COUNT(*) FROM post_like l WHERE l.post_id = p.id),
			EXISTS (SELECT 1 FROM post_like l WHERE l.post_id = p.id AND l.profile_id = $2)
		FROM community_post p
		JOIN profile pr ON pr.id = p.author_id
		WHERE p.community_id = $1
		ORDER BY p.created_at DESC`, communityID, viewerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*FeedPost, error) {
		fp := &FeedPost{Post: &Post{}}
		var first, last, username string
		dest := append(fp.Post.scanDest(), &first, &last, &username, &fp.AuthorType, &fp.Likes, &fp.IsLiked)
		if err := row.Scan(dest...); err != nil {
			return nil, err
		}
		fp.AuthorName = authorName(first, last, username)
		return fp, nil
	})
}

// =========== Attachment Repository ===========

type attachmentRepoPG struct{ pool db.DBTX }

func NewAttachmentRepoPG(pool db.DBTX) AttachmentRepository {
	return &attachmentRepoPG{pool: pool}
}

func (r *attachmentRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *attachmentRepoPG) Create(ctx context.Context, a *Attachment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO post_attachment (id, post_id, file_key, filename, file_type)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING uploaded_at`,
		a.ID, a.PostID, a.FileKey, a.FileName, a.FileType,
	).Scan(&a.UploadedAt)
	return db.Translate(err, "Attachment")
}

func (r *attachmentRepoPG) ListByPosts(ctx context.Context, postIDs []uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, post_id, file_key, filename, file_type, uploaded_at
		FROM post_attachment
		WHERE post_id = ANY($1)
		ORDER BY uploaded_at`, postIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Attachment, error) {
		var a Attachment
		err := row.Scan(&a.ID, &a.PostID, &a.FileKey, &a.FileName, &a.FileType, &a.UploadedAt)
		return &a, err
	})
}

// =========== Like Repository ===========

type likeRepoPG struct{ pool db.DBTX }

func NewLikeRepoPG(pool db.DBTX) LikeRepository {
	return &likeRepoPG{pool: pool}
}

func (r *likeRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *likeRepoPG) Create(ctx context.Context, postID, profileID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO post_like (id, post_id, profile_id) VALUES ($1,$2,$3)`, uuid.New(), postID, profileID)
	return db.Translate(err, "Like")
}

func (r *likeRepoPG) Delete(ctx context.Context, postID, profileID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM post_like WHERE post_id = $1 AND profile_id = $2`, postID, profileID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// =========== Comment Repository ===========

type commentRepoPG struct{ pool db.DBTX }

func NewCommentRepoPG(pool db.DBTX) CommentRepository {
	return &commentRepoPG{pool: pool}
}

func (r *commentRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *commentRepoPG) Create(ctx context.Context, c *Comment) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO post_comment (id, post_id, author_id, content)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		c.ID, c.PostID, c.AuthorID, c.Content,
	).Scan(&c.CreatedAt)
	return db.Translate(err, "Comment")
}

func (r *commentRepoPG) ListByPosts(ctx context.Context, postIDs []uuid.UUID) ([]*Comment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.post_id, c.author_id, c.content, c.created_at,
			pr.first_name, pr.last_name, pr.username, pr.role
		FROM post_comment c
		JOIN profile pr ON pr.id = c.author_id
		WHERE c.post_id = ANY($1)
		ORDER BY c.created_at`, postIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Comment, error) {
		var (
			c                     Comment
			first, last, username string
		)
		if err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.CreatedAt,
			&first, &last, &username, &c.AuthorType); err != nil {
			return nil, err
		}
		c.AuthorName = authorName(first, last, username)
		return &c, nil
	})
}
