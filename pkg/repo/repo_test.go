package repo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/pkg/model"
	"microblog/pkg/repo"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Post{}, &model.Comment{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *model.User {
	user := &model.User{Username: username, Password: "hash"}
	require.NoError(t, repo.NewUserRepository(db).Save(context.Background(), user))
	return user
}

func TestSaveAssignsIDAndTimestamps(t *testing.T) {
	db := setupTestDB(t)
	posts := repo.NewPostRepository(db)
	author := seedUser(t, db, "alice")

	post := &model.Post{AuthorID: author.ID, Title: "first", Body: "hello"}
	require.NoError(t, posts.Save(context.Background(), post))

	assert.NotZero(t, post.ID)
	assert.False(t, post.CreatedAt.IsZero())
	assert.False(t, post.UpdatedAt.IsZero())
}

func TestSaveWithExistingIDUpdates(t *testing.T) {
	db := setupTestDB(t)
	posts := repo.NewPostRepository(db)
	author := seedUser(t, db, "alice")

	post := &model.Post{AuthorID: author.ID, Title: "first", Body: "hello"}
	require.NoError(t, posts.Save(context.Background(), post))
	id := post.ID

	post.Title = "edited"
	require.NoError(t, posts.Save(context.Background(), post))
	assert.Equal(t, id, post.ID)

	got, err := posts.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Title)

	all, err := posts.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetPostEagerlyLoadsAuthorAndComments(t *testing.T) {
	db := setupTestDB(t)
	posts := repo.NewPostRepository(db)
	comments := repo.NewCommentRepository(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	post := &model.Post{AuthorID: alice.ID, Title: "first", Body: "hello"}
	other := &model.Post{AuthorID: bob.ID, Title: "second", Body: "bye"}
	require.NoError(t, posts.Save(context.Background(), post))
	require.NoError(t, posts.Save(context.Background(), other))

	ours := &model.Comment{UserID: bob.ID, PostID: post.ID, Body: "nice"}
	theirs := &model.Comment{UserID: alice.ID, PostID: other.ID, Body: "thanks"}
	require.NoError(t, comments.Save(context.Background(), ours))
	require.NoError(t, comments.Save(context.Background(), theirs))

	got, err := posts.GetByID(context.Background(), post.ID)
	require.NoError(t, err)

	require.NotNil(t, got.Author)
	assert.Equal(t, alice.ID, got.Author.ID)
	assert.Equal(t, "alice", got.Author.Username)

	// Only the comments attached to this post, nothing from the other one.
	require.Len(t, got.Comments, 1)
	assert.Equal(t, ours.ID, got.Comments[0].ID)
	assert.Equal(t, post.ID, got.Comments[0].PostID)
}

func TestSaveRejectsDanglingReferences(t *testing.T) {
	db := setupTestDB(t)
	posts := repo.NewPostRepository(db)
	comments := repo.NewCommentRepository(db)

	// An author reference must resolve to an existing user at write time.
	orphanPost := &model.Post{AuthorID: 999, Title: "orphan", Body: "x"}
	assert.Error(t, posts.Save(context.Background(), orphanPost))

	alice := seedUser(t, db, "alice")
	orphanComment := &model.Comment{UserID: alice.ID, PostID: 999, Body: "x"}
	assert.Error(t, comments.Save(context.Background(), orphanComment))

	var count int64
	require.NoError(t, db.Model(&model.Post{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&model.Comment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := repo.NewPostRepository(db).GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.NewUserRepository(db).GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.NewCommentRepository(db).GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserListAndLookup(t *testing.T) {
	db := setupTestDB(t)
	users := repo.NewUserRepository(db)

	seedUser(t, db, "alice")
	seedUser(t, db, "bob")

	all, err := users.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := users.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
}

func TestCommentList(t *testing.T) {
	db := setupTestDB(t)
	comments := repo.NewCommentRepository(db)
	posts := repo.NewPostRepository(db)
	alice := seedUser(t, db, "alice")

	post := &model.Post{AuthorID: alice.ID, Title: "first", Body: "hello"}
	require.NoError(t, posts.Save(context.Background(), post))

	require.NoError(t, comments.Save(context.Background(), &model.Comment{UserID: alice.ID, PostID: post.ID, Body: "one"}))
	require.NoError(t, comments.Save(context.Background(), &model.Comment{UserID: alice.ID, PostID: post.ID, Body: "two"}))

	all, err := comments.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
