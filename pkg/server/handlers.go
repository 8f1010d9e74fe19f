package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"microblog/pkg/model"
	"microblog/pkg/service"
)

var errEmptyBody = errors.New("empty request body")

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createPostRequest struct {
	AuthorID uint   `json:"author_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

type createCommentRequest struct {
	UserID uint   `json:"user_id"`
	PostID uint   `json:"post_id"`
	Body   string `json:"body"`
}

type idResponse struct {
	ID uint `json:"id"`
}

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	msg := s.sessions.PopFlash(w, r)
	if err := templates.ExecuteTemplate(w, "login.html", map[string]interface{}{
		"message": msg,
	}); err != nil {
		requestLogger(r, s.log).WithError(err).Error("failed to render login page")
	}
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, s.log)
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	user, err := s.auth.Authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			s.sessions.Flash(w, r, "Invalid username or password.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		log.WithError(err).Error("login failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := s.sessions.SignIn(w, r, user); err != nil {
		log.WithError(err).Error("failed to establish session")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/posts", http.StatusSeeOther)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.SignOut(w, r); err != nil {
		requestLogger(r, s.log).WithError(err).Warn("failed to clear session")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), pathID(r))
	if err != nil {
		s.respondFetchError(w, r, err, "failed to fetch user")
		return
	}
	s.writeJSON(w, r, user)
}

func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		requestLogger(r, s.log).WithError(err).Error("failed to create user")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, idResponse{ID: id})
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context())
	if err != nil {
		requestLogger(r, s.log).WithError(err).Error("failed to list posts")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if posts == nil {
		posts = []*model.Post{}
	}
	s.writeJSON(w, r, posts)
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.GetByID(r.Context(), pathID(r))
	if err != nil {
		s.respondFetchError(w, r, err, "failed to fetch post")
		return
	}
	s.writeJSON(w, r, post)
}

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	post := &model.Post{
		AuthorID: req.AuthorID,
		Title:    req.Title,
		Body:     req.Body,
	}
	if err := s.posts.Save(r.Context(), post); err != nil {
		requestLogger(r, s.log).WithError(err).Error("failed to create post")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	requestLogger(r, s.log).WithField("user_id", currentUser(r).ID).
		WithField("post_id", post.ID).Info("post created")
	s.writeJSON(w, r, idResponse{ID: post.ID})
}

func (s *Server) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	comment := &model.Comment{
		UserID: req.UserID,
		PostID: req.PostID,
		Body:   req.Body,
	}
	if err := s.comments.Save(r.Context(), comment); err != nil {
		requestLogger(r, s.log).WithError(err).Error("failed to create comment")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, idResponse{ID: comment.ID})
}

// respondFetchError maps a read failure to 404 or 500. Store errors are
// logged server-side and never echoed to the client.
func (s *Server) respondFetchError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	requestLogger(r, s.log).WithError(err).Error(msg)
	w.WriteHeader(http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		requestLogger(r, s.log).WithError(err).Error("failed to write response")
	}
}

// decodeBody rejects an absent or empty payload before unmarshalling, the
// only request validation the create endpoints perform.
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read body")
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return errEmptyBody
	}
	return errors.Wrap(json.Unmarshal(trimmed, dst), "failed to decode body")
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}
