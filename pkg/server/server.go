// Package server exposes the HTTP surface: a session-based login flow and
// JSON CRUD endpoints for users, posts and comments behind the auth gate.
// The gate is binary only; it does not check per-resource ownership.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"microblog/pkg/config"
	"microblog/pkg/repo"
	"microblog/pkg/service"
	"microblog/pkg/session"
)

type Server struct {
	log      *logrus.Logger
	auth     service.Authenticator
	sessions *session.Manager
	users    repo.UserRepository
	posts    repo.PostRepository
	comments repo.CommentRepository
	limiter  *Limiter
}

// New builds the server from explicit configuration. There is no package
// level state; everything hangs off the returned value.
func New(cfg *config.Config, db *gorm.DB, log *logrus.Logger) *Server {
	users := repo.NewUserRepository(db)

	s := &Server{
		log:      log,
		auth:     service.NewAuthenticator(users),
		sessions: session.NewManager(cfg.SessionSecret, users),
		users:    users,
		posts:    repo.NewPostRepository(db),
		comments: repo.NewCommentRepository(db),
	}
	if cfg.RedisAddr != "" {
		s.limiter = NewRedisLimiter(cfg.RedisAddr, log)
	}
	return s
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/login", s.loginPageHandler).Methods(http.MethodGet)
	login := http.Handler(http.HandlerFunc(s.loginHandler))
	if s.limiter != nil {
		login = s.limiter.Limit(login)
	}
	r.Handle("/login", login).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.logoutHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	r.Handle("/user/{id:[0-9]+}", s.requireAuth(s.getUserHandler)).Methods(http.MethodGet)
	r.Handle("/user", s.requireAuth(s.createUserHandler)).Methods(http.MethodPost)
	r.Handle("/posts", s.requireAuth(s.listPostsHandler)).Methods(http.MethodGet)
	r.Handle("/post/{id:[0-9]+}", s.requireAuth(s.getPostHandler)).Methods(http.MethodGet)
	r.Handle("/post", s.requireAuth(s.createPostHandler)).Methods(http.MethodPost)
	r.Handle("/comment", s.requireAuth(s.createCommentHandler)).Methods(http.MethodPost)

	return &logHandler{log: s.log, next: r}
}
