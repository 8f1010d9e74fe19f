package repo

import (
	"context"

	"gorm.io/gorm"

	"microblog/pkg/model"
)

type CommentRepository interface {
	Save(ctx context.Context, comment *model.Comment) error
	GetByID(ctx context.Context, id uint) (*model.Comment, error)
	List(ctx context.Context) ([]*model.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Save(ctx context.Context, comment *model.Comment) error {
	return r.db.WithContext(ctx).Omit("User", "Post").Save(comment).Error
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*model.Comment, error) {
	var comment model.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) List(ctx context.Context) ([]*model.Comment, error) {
	var comments []*model.Comment
	if err := r.db.WithContext(ctx).Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
