package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/learnhub/progression-engine/internal/application/command"
	"github.com/learnhub/progression-engine/internal/application/query"
	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth returns the full health status including all checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}

	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, r, httpStatus, status)
}

// handleReady reports whether the service can take traffic.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONErrorWithDetails(w, r, http.StatusServiceUnavailable, "not_ready", "Service is not ready", status.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ready": true})
}

// handleLive reports liveness; it never touches dependencies.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type registerUserRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
}

type userResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarRef   string    `json:"avatar_ref,omitempty"`
	Experience  int64     `json:"experience"`
	Level       int       `json:"level"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleRegisterUser handles POST /api/v1/users.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.deps.RegisterUser.Handle(r.Context(), command.RegisterUserCommand{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		AvatarRef:   req.AvatarRef,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, userResponse{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		AvatarRef:   user.AvatarRef,
		Experience:  user.Experience,
		Level:       user.Level(),
		CreatedAt:   user.CreatedAt,
	})
}

type recordActionRequest struct {
	ActionType       string         `json:"action_type"`
	Description      string         `json:"description"`
	RelatedPostID    string         `json:"related_post_id"`
	RelatedCommentID string         `json:"related_comment_id"`
	Metadata         map[string]any `json:"metadata"`
	IdempotencyKey   string         `json:"idempotency_key"`
}

type badgeResponse struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type recordActionResponse struct {
	EntryID               string          `json:"entry_id"`
	UserID                string          `json:"user_id"`
	ActionType            string          `json:"action_type"`
	PointsAwarded         int             `json:"points_awarded"`
	Experience            int64           `json:"experience"`
	Level                 int             `json:"level"`
	LevelUp               bool            `json:"level_up"`
	ExperienceToNextLevel int64           `json:"experience_to_next_level"`
	NewBadges             []badgeResponse `json:"new_badges"`
	Streak                query.StreakDTO `json:"streak"`
	Replayed              bool            `json:"replayed"`
}

// handleRecordAction handles POST /api/v1/users/{id}/actions. A replayed
// idempotency key answers 200 with the original entry instead of 201.
func (s *Server) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	var req recordActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(IdempotencyKeyHeader)
	}

	result, err := s.deps.RecordAction.Handle(r.Context(), command.RecordActionCommand{
		UserID:      mux.Vars(r)["id"],
		ActionType:  progression.ActionType(req.ActionType),
		Description: req.Description,
		References: progression.References{
			PostID:    req.RelatedPostID,
			CommentID: req.RelatedCommentID,
		},
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	badges := make([]badgeResponse, 0, len(result.NewBadges))
	for _, b := range result.NewBadges {
		badges = append(badges, badgeResponse{Name: b.Name, Title: b.Title, Description: b.Description, Icon: b.Icon})
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, r, status, recordActionResponse{
		EntryID:               result.EntryID.String(),
		UserID:                result.UserID,
		ActionType:            result.ActionType.String(),
		PointsAwarded:         result.PointsAwarded,
		Experience:            result.Experience,
		Level:                 result.NewLevel,
		LevelUp:               result.LevelUp,
		ExperienceToNextLevel: result.ExperienceToNextLevel,
		NewBadges:             badges,
		Streak: query.StreakDTO{
			Current:          result.Streak.Current,
			Longest:          result.Streak.Longest,
			LastActivityDate: result.Streak.LastActivityDate,
		},
		Replayed: result.Replayed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProfile handles GET /api/v1/users/{id}/profile?recent=N.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	recent, err := getQueryParamInt(r, "recent", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := s.deps.GetProfile.Handle(r.Context(), query.GetProfileQuery{
		UserID:      mux.Vars(r)["id"],
		RecentLimit: recent,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profile)
}

// handleGetAchievements handles GET /api/v1/users/{id}/achievements.
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetAchievements.Handle(r.Context(), query.GetAchievementsQuery{
		UserID: mux.Vars(r)["id"],
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetActivity handles GET /api/v1/users/{id}/activity?limit=N.
func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.GetActivity.Handle(r.Context(), query.GetActivityQuery{
		UserID: mux.Vars(r)["id"],
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetLeaderboard handles GET /api/v1/leaderboard?limit=N.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body into dst. On failure it writes the
// error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			writeError(w, r, err)
		case errors.Is(err, io.EOF):
			writeError(w, r, shared.NewDomainError("http", "DecodeBody", shared.ErrInvalidInput, "request body is required"))
		default:
			writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON", err.Error())
		}
		return false
	}
	return true
}
