package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	verificationerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	verificationhttp "wayfinder/contexts/community-mapping/verification-engine/transport/http"
	"wayfinder/internal/platform/correlation"
)

func writeVerificationError(w http.ResponseWriter, status int, kind string, message string) {
	writeJSON(w, status, verificationhttp.ErrorResponse{
		Success:   false,
		ErrorKind: kind,
		Message:   message,
	})
}

func writeVerificationDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verificationerrors.ErrInvalidVote):
		writeVerificationError(w, http.StatusBadRequest, "InvalidVote", err.Error())
	case errors.Is(err, verificationerrors.ErrInvalidEntityInput):
		writeVerificationError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, verificationerrors.ErrSelfVoteForbidden):
		writeVerificationError(w, http.StatusForbidden, "SelfVoteForbidden", err.Error())
	case errors.Is(err, verificationerrors.ErrEntityNotFound):
		writeVerificationError(w, http.StatusNotFound, "EntityNotFound", err.Error())
	case errors.Is(err, verificationerrors.ErrVoterNotFound):
		writeVerificationError(w, http.StatusNotFound, "VoterNotFound", err.Error())
	case errors.Is(err, verificationerrors.ErrEntityConflict):
		writeVerificationError(w, http.StatusConflict, "EntityConflict", err.Error())
	case errors.Is(err, verificationerrors.ErrTransactionConflict):
		writeVerificationError(w, http.StatusConflict, "TransactionConflict", "entity is busy, try again")
	default:
		writeVerificationError(w, http.StatusInternalServerError, "Internal", "internal server error")
	}
}

func requireVerificationAuthorization(w http.ResponseWriter, r *http.Request) bool {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		writeVerificationError(w, http.StatusUnauthorized, "Unauthorized", "Authorization bearer token is required")
		return false
	}
	return true
}

// handleCastLandmarkVote godoc
// @Summary Cast or change a vote on a landmark
// @Tags verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entity_id path string true "Landmark id"
// @Param X-User-Id header string true "Voter id resolved by the gateway"
// @Param request body verificationhttp.CastVoteRequest true "Vote"
// @Success 200 {object} verificationhttp.CastVoteResponse
// @Failure 400 {object} verificationhttp.ErrorResponse
// @Failure 401 {object} verificationhttp.ErrorResponse
// @Failure 403 {object} verificationhttp.ErrorResponse
// @Failure 404 {object} verificationhttp.ErrorResponse
// @Failure 409 {object} verificationhttp.ErrorResponse
// @Failure 429 {object} verificationhttp.ErrorResponse
// @Router /api/v1/landmarks/{entity_id}/vote [post]
func (s *Server) handleCastLandmarkVote(w http.ResponseWriter, r *http.Request) {
	s.handleCastVote(w, r, entities.EntityKindLandmark)
}

// handleCastRouteVote godoc
// @Summary Cast or change a vote on a route
// @Tags verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entity_id path string true "Route id"
// @Param X-User-Id header string true "Voter id resolved by the gateway"
// @Param request body verificationhttp.CastVoteRequest true "Vote"
// @Success 200 {object} verificationhttp.CastVoteResponse
// @Failure 400 {object} verificationhttp.ErrorResponse
// @Failure 409 {object} verificationhttp.ErrorResponse
// @Router /api/v1/routes/{entity_id}/vote [post]
func (s *Server) handleCastRouteVote(w http.ResponseWriter, r *http.Request) {
	s.handleCastVote(w, r, entities.EntityKindRoute)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request, kind entities.EntityKind) {
	if !requireVerificationAuthorization(w, r) {
		return
	}
	voterID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if voterID == "" {
		writeVerificationError(w, http.StatusUnauthorized, "Unauthorized", "X-User-Id header is required")
		return
	}
	if s.voteLimiter != nil && !s.voteLimiter.Allow(voterID) {
		s.logger.WarnContext(r.Context(), "vote rate limit exceeded",
			"event", "http_vote_rate_limited",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"voter_id", voterID,
		)
		writeVerificationError(w, http.StatusTooManyRequests, "RateLimited", "too many votes, slow down")
		return
	}

	var req verificationhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVerificationError(w, http.StatusBadRequest, "InvalidVote", "request body must be valid JSON")
		return
	}

	entityID := strings.TrimSpace(r.PathValue("entity_id"))
	resp, err := s.verification.Handler.CastVoteHandler(r.Context(), kind, entityID, voterID, req)
	if err != nil {
		requestID, _ := correlation.ID(r.Context())
		s.logger.InfoContext(r.Context(), "vote request failed",
			"event", "http_vote_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"entity_id", entityID,
			"voter_id", voterID,
			"request_id", requestID,
			"error", err.Error(),
		)
		writeVerificationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRegisterLandmark godoc
// @Summary Open a submitted landmark for verification
// @Tags verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Submitter id resolved by the gateway"
// @Param request body verificationhttp.RegisterEntityRequest true "Submission"
// @Success 201 {object} verificationhttp.RegisterEntityResponse
// @Success 200 {object} verificationhttp.RegisterEntityResponse "Already registered"
// @Failure 400 {object} verificationhttp.ErrorResponse
// @Failure 401 {object} verificationhttp.ErrorResponse
// @Failure 409 {object} verificationhttp.ErrorResponse
// @Router /api/v1/landmarks [post]
func (s *Server) handleRegisterLandmark(w http.ResponseWriter, r *http.Request) {
	s.handleRegisterEntity(w, r, entities.EntityKindLandmark)
}

// handleRegisterRoute godoc
// @Summary Open a submitted route for verification
// @Tags verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param X-User-Id header string true "Submitter id resolved by the gateway"
// @Param request body verificationhttp.RegisterEntityRequest true "Submission"
// @Success 201 {object} verificationhttp.RegisterEntityResponse
// @Failure 409 {object} verificationhttp.ErrorResponse
// @Router /api/v1/routes [post]
func (s *Server) handleRegisterRoute(w http.ResponseWriter, r *http.Request) {
	s.handleRegisterEntity(w, r, entities.EntityKindRoute)
}

func (s *Server) handleRegisterEntity(w http.ResponseWriter, r *http.Request, kind entities.EntityKind) {
	if !requireVerificationAuthorization(w, r) {
		return
	}
	submitterID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if submitterID == "" {
		writeVerificationError(w, http.StatusUnauthorized, "Unauthorized", "X-User-Id header is required")
		return
	}

	var req verificationhttp.RegisterEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVerificationError(w, http.StatusBadRequest, "InvalidRequest", "request body must be valid JSON")
		return
	}

	resp, err := s.verification.Handler.RegisterEntityHandler(r.Context(), kind, submitterID, req)
	if err != nil {
		requestID, _ := correlation.ID(r.Context())
		s.logger.InfoContext(r.Context(), "entity registration request failed",
			"event", "http_entity_register_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"entity_id", strings.TrimSpace(req.ID),
			"submitter_id", submitterID,
			"request_id", requestID,
			"error", err.Error(),
		)
		writeVerificationDomainError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// handleGetLandmark godoc
// @Summary Read a landmark's verification state
// @Tags verification
// @Produce json
// @Param entity_id path string true "Landmark id"
// @Success 200 {object} verificationhttp.EntityResponse
// @Failure 404 {object} verificationhttp.ErrorResponse
// @Router /api/v1/landmarks/{entity_id} [get]
func (s *Server) handleGetLandmark(w http.ResponseWriter, r *http.Request) {
	s.handleGetEntity(w, r, entities.EntityKindLandmark)
}

// handleGetRoute godoc
// @Summary Read a route's verification state
// @Tags verification
// @Produce json
// @Param entity_id path string true "Route id"
// @Success 200 {object} verificationhttp.EntityResponse
// @Failure 404 {object} verificationhttp.ErrorResponse
// @Router /api/v1/routes/{entity_id} [get]
func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	s.handleGetEntity(w, r, entities.EntityKindRoute)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request, kind entities.EntityKind) {
	resp, err := s.verification.Handler.GetEntityHandler(r.Context(), kind, r.PathValue("entity_id"))
	if err != nil {
		writeVerificationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListLandmarks godoc
// @Summary List landmarks for the map layer
// @Tags verification
// @Produce json
// @Param status query string false "pending, verified, rejected or disputed"
// @Param limit query int false "Page size, at most 500"
// @Success 200 {object} verificationhttp.ListEntitiesResponse
// @Failure 400 {object} verificationhttp.ErrorResponse
// @Router /api/v1/landmarks [get]
func (s *Server) handleListLandmarks(w http.ResponseWriter, r *http.Request) {
	s.handleListEntities(w, r, entities.EntityKindLandmark)
}

// handleListRoutes godoc
// @Summary List routes for the map layer
// @Tags verification
// @Produce json
// @Param status query string false "pending, verified, rejected or disputed"
// @Param limit query int false "Page size, at most 500"
// @Success 200 {object} verificationhttp.ListEntitiesResponse
// @Failure 400 {object} verificationhttp.ErrorResponse
// @Router /api/v1/routes [get]
func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	s.handleListEntities(w, r, entities.EntityKindRoute)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request, kind entities.EntityKind) {
	query := r.URL.Query()
	limit := 0
	if limitRaw := query.Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeVerificationError(w, http.StatusBadRequest, "InvalidRequest", "limit must be an integer")
			return
		}
		limit = parsed
	}

	resp, err := s.verification.Handler.ListEntitiesHandler(r.Context(), kind, strings.TrimSpace(query.Get("status")), limit)
	if err != nil {
		writeVerificationDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
