// Package httpapi exposes the services over a JSON REST surface built on
// gin. Handlers translate between HTTP and the services; all authorization
// and PII handling happens below this layer.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/identity"
	"github.com/dstepanovs/teamplan/internal/server/services"
)

const principalKey = "principal"

// Server bundles the services behind the REST routes.
type Server struct {
	users       *services.UserService
	projects    *services.ProjectService
	goals       *services.GoalService
	messages    *services.MessageService
	invitations *services.InvitationService
	attachments *services.AttachmentService
	tokens      *identity.Resolver
	log         logging.Logger
}

func NewServer(users *services.UserService, projects *services.ProjectService,
	goals *services.GoalService, messages *services.MessageService,
	invitations *services.InvitationService, attachments *services.AttachmentService,
	tokens *identity.Resolver, log logging.Logger) *Server {
	return &Server{
		users:       users,
		projects:    projects,
		goals:       goals,
		messages:    messages,
		invitations: invitations,
		attachments: attachments,
		tokens:      tokens,
		log:         log.With("module", "httpapi"),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	api.POST("/register", s.register)
	api.POST("/login", s.login)

	auth := api.Group("", s.authenticate)
	auth.GET("/users/:id", s.getUser)
	auth.PATCH("/users/:id", s.updateUser)
	auth.GET("/users", s.listUsers)

	auth.POST("/projects", s.createProject)
	auth.GET("/projects", s.listProjects)
	auth.GET("/projects/:id", s.getProject)
	auth.PATCH("/projects/:id", s.updateProject)
	auth.DELETE("/projects/:id", s.deleteProject)
	auth.POST("/projects/:id/members", s.addProjectMember)
	auth.DELETE("/projects/:id/members/:userID", s.removeProjectMember)
	auth.GET("/projects/:id/messages", s.listMessages)
	auth.POST("/projects/:id/messages", s.postMessage)
	auth.GET("/projects/:id/invitations", s.listInvitations)
	auth.POST("/projects/:id/invitations", s.invite)
	auth.POST("/projects/:id/attachments", s.presignUpload)
	auth.GET("/projects/:id/attachments", s.presignDownload)

	auth.POST("/invitations/accept", s.acceptInvitation)

	auth.POST("/goals", s.createGoal)
	auth.GET("/goals", s.listGoals)
	auth.GET("/goals/:id", s.getGoal)
	auth.PATCH("/goals/:id", s.updateGoal)
	auth.DELETE("/goals/:id", s.deleteGoal)
	auth.POST("/goals/:id/members", s.addGoalMember)
	auth.DELETE("/goals/:id/members/:userID", s.removeGoalMember)
	auth.POST("/goals/:id/tasks", s.addTask)
	auth.PATCH("/tasks/:id", s.updateTaskStatus)

	return r
}

// authenticate resolves the bearer token to a principal or aborts with 401.
func (s *Server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	principal, err := s.tokens.ResolvePrincipal(header[len(prefix):])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(principalKey, principal)
	c.Next()
}

func principalFrom(c *gin.Context) authz.Principal {
	p, _ := c.MustGet(principalKey).(authz.Principal)
	return p
}

// fail maps a service error onto a status code. Decryption failures report
// as plain internal errors so ciphertext details never reach a client.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, common.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		s.log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
