package repo

import (
	"context"

	"gorm.io/gorm"

	"microblog/pkg/model"
)

type PostRepository interface {
	Save(ctx context.Context, post *model.Post) error
	// GetByID eagerly loads the post's author and comments.
	GetByID(ctx context.Context, id uint) (*model.Post, error)
	List(ctx context.Context) ([]*model.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Save(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Omit("Author", "Comments").Save(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Comments").
		First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context) ([]*model.Post, error) {
	var posts []*model.Post
	if err := r.db.WithContext(ctx).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}
