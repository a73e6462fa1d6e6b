package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sweetlane/sweetshop/internal/user"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func registerHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Username == "" || req.Email == "" || req.Password == "" {
			errJSON(c, http.StatusBadRequest, "username, email and password are required")
			return
		}
		banned, err := repo.IsBanned(c.Request.Context(), req.Email)
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not register")
			return
		}
		if banned {
			errJSON(c, http.StatusForbidden, "email is banned")
			return
		}
		u := &user.User{
			ID:        uuid.NewString(),
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			CreatedAt: time.Now().UTC(),
		}
		err = repo.Create(c.Request.Context(), u)
		if errors.Is(err, user.ErrAlreadyExists) {
			errJSON(c, http.StatusConflict, "email already registered")
			return
		}
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not register")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "user": u})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginHandler authenticates by direct password comparison, matching the
// legacy shop. adminOnly guards the back-office login route.
func loginHandler(repo user.Repository, adminOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Email == "" || req.Password == "" {
			errJSON(c, http.StatusBadRequest, "email and password are required")
			return
		}
		banned, err := repo.IsBanned(c.Request.Context(), req.Email)
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not log in")
			return
		}
		if banned {
			errJSON(c, http.StatusForbidden, "email is banned")
			return
		}
		u, err := repo.GetByEmail(c.Request.Context(), req.Email)
		if errors.Is(err, user.ErrNotFound) {
			errJSON(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not log in")
			return
		}
		if u.Password != req.Password {
			errJSON(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if adminOnly && !u.IsAdmin {
			errJSON(c, http.StatusForbidden, "admin access required")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"is_admin": u.IsAdmin,
		})
	}
}

func listUsersHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := repo.List(c.Request.Context())
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not list users")
			return
		}
		if out == nil {
			out = []user.User{}
		}
		c.JSON(http.StatusOK, out)
	}
}

func deleteUserHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not delete user")
			return
		}
		if !deleted {
			errJSON(c, http.StatusNotFound, "user not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}

func listBansHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := repo.ListBans(c.Request.Context())
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not list banned emails")
			return
		}
		if out == nil {
			out = []user.Ban{}
		}
		c.JSON(http.StatusOK, out)
	}
}

type banRequest struct {
	Email    string `json:"email"`
	Reason   string `json:"reason"`
	BannedBy string `json:"banned_by"`
}

func banEmailHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req banRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errJSON(c, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Email == "" {
			errJSON(c, http.StatusBadRequest, "email is required")
			return
		}
		if req.BannedBy == "" {
			req.BannedBy = "Admin"
		}
		b := &user.Ban{
			ID:        uuid.NewString(),
			Email:     req.Email,
			Reason:    req.Reason,
			BannedBy:  req.BannedBy,
			CreatedAt: time.Now().UTC(),
		}
		err := repo.Ban(c.Request.Context(), b)
		if errors.Is(err, user.ErrAlreadyBanned) {
			errJSON(c, http.StatusConflict, "email already banned")
			return
		}
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not ban email")
			return
		}
		c.JSON(http.StatusCreated, b)
	}
}

func unbanHandler(repo user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := repo.Unban(c.Request.Context(), c.Param("id"))
		if err != nil {
			errJSON(c, http.StatusInternalServerError, "could not unban email")
			return
		}
		if !deleted {
			errJSON(c, http.StatusNotFound, "ban not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Email unbanned"})
	}
}
