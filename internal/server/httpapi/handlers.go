package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/services"
)

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

type registerInput struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) register(c *gin.Context) {
	var in registerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := s.users.Register(c.Request.Context(), services.RegisterParams{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

type loginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var in loginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, profile, err := s.users.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": profile})
}

func (s *Server) getUser(c *gin.Context) {
	profile, err := s.users.Get(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type updateUserInput struct {
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

func (s *Server) updateUser(c *gin.Context) {
	var in updateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := s.users.Update(c.Request.Context(), principalFrom(c), c.Param("id"), services.UpdateParams{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) listUsers(c *gin.Context) {
	page, err := s.users.List(c.Request.Context(), principalFrom(c), pageParam(c), c.Query("search"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":      page.Users,
		"total":      page.Total,
		"totalPages": page.TotalPages,
	})
}

type projectInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) createProject(c *gin.Context) {
	var in projectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := s.projects.Create(c.Request.Context(), principalFrom(c), in.Name, in.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) listProjects(c *gin.Context) {
	page, err := s.projects.List(c.Request.Context(), principalFrom(c), pageParam(c), c.Query("search"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projects":   page.Projects,
		"total":      page.Total,
		"totalPages": page.TotalPages,
	})
}

func (s *Server) getProject(c *gin.Context) {
	project, err := s.projects.Get(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

type updateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) updateProject(c *gin.Context) {
	var in updateProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project, err := s.projects.Update(c.Request.Context(), principalFrom(c), c.Param("id"), in.Name, in.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) deleteProject(c *gin.Context) {
	if err := s.projects.Delete(c.Request.Context(), principalFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type memberInput struct {
	UserID string `json:"userID" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

func (s *Server) addProjectMember(c *gin.Context) {
	var in memberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	membership, err := s.projects.AddMember(c.Request.Context(), principalFrom(c),
		c.Param("id"), in.UserID, authz.Role(in.Role))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func (s *Server) removeProjectMember(c *gin.Context) {
	err := s.projects.RemoveMember(c.Request.Context(), principalFrom(c),
		c.Param("id"), c.Param("userID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type goalInput struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Kind        string `json:"kind" binding:"required"`
}

func (s *Server) createGoal(c *gin.Context) {
	var in goalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	goal, err := s.goals.Create(c.Request.Context(), principalFrom(c),
		in.Title, in.Description, authz.GoalKind(in.Kind))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

func (s *Server) listGoals(c *gin.Context) {
	page, err := s.goals.List(c.Request.Context(), principalFrom(c), pageParam(c), c.Query("search"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"goals":      page.Goals,
		"total":      page.Total,
		"totalPages": page.TotalPages,
	})
}

func (s *Server) getGoal(c *gin.Context) {
	goal, err := s.goals.Get(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, goal)
}

type updateGoalInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s *Server) updateGoal(c *gin.Context) {
	var in updateGoalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	goal, err := s.goals.Update(c.Request.Context(), principalFrom(c), c.Param("id"), in.Title, in.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, goal)
}

func (s *Server) deleteGoal(c *gin.Context) {
	if err := s.goals.Delete(c.Request.Context(), principalFrom(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addGoalMember(c *gin.Context) {
	var in memberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	membership, err := s.goals.AddMember(c.Request.Context(), principalFrom(c),
		c.Param("id"), in.UserID, authz.Role(in.Role))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func (s *Server) removeGoalMember(c *gin.Context) {
	err := s.goals.RemoveMember(c.Request.Context(), principalFrom(c),
		c.Param("id"), c.Param("userID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type taskInput struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) addTask(c *gin.Context) {
	var in taskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.goals.AddTask(c.Request.Context(), principalFrom(c),
		c.Param("id"), in.Title, in.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

type taskStatusInput struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateTaskStatus(c *gin.Context) {
	var in taskStatusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.goals.UpdateTaskStatus(c.Request.Context(), principalFrom(c), c.Param("id"), in.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type messageInput struct {
	Body string `json:"body" binding:"required"`
}

func (s *Server) postMessage(c *gin.Context) {
	var in messageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := s.messages.Post(c.Request.Context(), principalFrom(c), c.Param("id"), in.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) listMessages(c *gin.Context) {
	page, err := s.messages.List(c.Request.Context(), principalFrom(c), c.Param("id"), pageParam(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":   page.Messages,
		"total":      page.Total,
		"totalPages": page.TotalPages,
	})
}

type inviteInput struct {
	Email  string `json:"email" binding:"required"`
	Number string `json:"number"`
}

func (s *Server) invite(c *gin.Context) {
	var in inviteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	invitation, err := s.invitations.Invite(c.Request.Context(), principalFrom(c), services.InviteParams{
		ProjectID: c.Param("id"),
		Email:     in.Email,
		Number:    in.Number,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, invitation)
}

func (s *Server) listInvitations(c *gin.Context) {
	invitations, err := s.invitations.ListForProject(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

type acceptInput struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) acceptInvitation(c *gin.Context) {
	var in acceptInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	membership, err := s.invitations.Accept(c.Request.Context(), principalFrom(c), in.Token)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func (s *Server) presignUpload(c *gin.Context) {
	key, url, err := s.attachments.PresignUpload(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "uploadURL": url})
}

func (s *Server) presignDownload(c *gin.Context) {
	key := c.Query("key")
	url, err := s.attachments.PresignDownload(c.Request.Context(), principalFrom(c), c.Param("id"), key)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloadURL": url})
}
