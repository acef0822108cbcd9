package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sentencevault/sentence-service/internal/repository"
	"github.com/sentencevault/sentence-service/shared/cqrs"
	"github.com/sentencevault/sentence-service/shared/middleware"
	"golang.org/x/crypto/bcrypt"
)

// Body status codes sent to clients alongside the HTTP status.
const (
	StatusCodeOK                 = 200
	StatusCodeOutOfTokens        = 301
	StatusCodeInvalidCredentials = 302
)

// AccountCommander defines the account operations used by AccountHandler.
type AccountCommander interface {
	Register(ctx context.Context, cmd cqrs.RegisterCommand) (cqrs.Result, error)
	Store(ctx context.Context, cmd cqrs.StoreSentenceCommand) (cqrs.Result, error)
	Retrieve(ctx context.Context, cmd cqrs.RetrieveSentenceCommand) (cqrs.Result, error)
}

// AccountHandler handles the register, store and get requests.
type AccountHandler struct {
	commands AccountCommander
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

type StoreRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,maxbytes=72"`
	Sentence string `json:"sentence" validate:"required"`
}

type RetrieveRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

type StatusResponse struct {
	Status  int    `json:"status"`
	Message string `json:"msg,omitempty"`
}

type SentenceResponse struct {
	Status   int    `json:"status"`
	Sentence string `json:"sentence"`
}

func NewAccountHandler(commands AccountCommander) *AccountHandler {
	return &AccountHandler{commands: commands}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindRequest(c, &req) {
		return
	}

	result, err := h.commands.Register(c.Request.Context(), cqrs.RegisterCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		respondWithCommandError(c, err)
		return
	}
	respondWithOutcome(c, result.Outcome, StatusResponse{
		Status:  StatusCodeOK,
		Message: "You successfully signed up for the API",
	})
}

func (h *AccountHandler) Store(c *gin.Context) {
	var req StoreRequest
	if !bindRequest(c, &req) {
		return
	}

	result, err := h.commands.Store(c.Request.Context(), cqrs.StoreSentenceCommand{
		Username: req.Username,
		Password: req.Password,
		Sentence: req.Sentence,
	})
	if err != nil {
		respondWithCommandError(c, err)
		return
	}
	respondWithOutcome(c, result.Outcome, StatusResponse{
		Status:  StatusCodeOK,
		Message: "Sentence saved successfully",
	})
}

func (h *AccountHandler) Retrieve(c *gin.Context) {
	var req RetrieveRequest
	if !bindRequest(c, &req) {
		return
	}

	result, err := h.commands.Retrieve(c.Request.Context(), cqrs.RetrieveSentenceCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		respondWithCommandError(c, err)
		return
	}
	respondWithOutcome(c, result.Outcome, SentenceResponse{
		Status:   StatusCodeOK,
		Sentence: result.Sentence,
	})
}

func bindRequest(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

// respondWithOutcome writes ok for OutcomeOK and the matching refusal otherwise.
func respondWithOutcome(c *gin.Context, outcome cqrs.Outcome, ok any) {
	switch outcome {
	case cqrs.OutcomeOK:
		c.JSON(http.StatusOK, ok)
	case cqrs.OutcomeOutOfTokens:
		c.JSON(http.StatusPaymentRequired, StatusResponse{
			Status:  StatusCodeOutOfTokens,
			Message: "You are out of tokens",
		})
	case cqrs.OutcomeInvalidCredentials:
		c.JSON(http.StatusUnauthorized, StatusResponse{
			Status:  StatusCodeInvalidCredentials,
			Message: "Invalid username or password",
		})
	default:
		log.Printf("Unhandled command outcome: %s", outcome)
		middleware.RespondWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

func respondWithCommandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrDuplicateUser):
		middleware.RespondWithError(c, http.StatusConflict, "Username is already taken")
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		middleware.RespondWithError(c, http.StatusBadRequest, "Password must not exceed 72 bytes")
	case errors.Is(err, repository.ErrStorageUnavailable):
		log.Printf("Storage unavailable on %s: %v", c.FullPath(), err)
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		log.Printf("Request to %s failed: %v", c.FullPath(), err)
		middleware.RespondWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
