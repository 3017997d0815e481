package handler

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"labtrack/internal/attendance"
	"labtrack/internal/auth"
	"labtrack/internal/config"
	"labtrack/internal/httpmiddleware"
	"labtrack/internal/metrics"
	"labtrack/internal/model"
	"labtrack/internal/pending"
	"labtrack/internal/queue"
	"labtrack/internal/roster"
)

// Handler binds the services to the HTTP surface.
type Handler struct {
	cfg    config.App
	pend   *pending.Service
	att    *attendance.Service
	roster *roster.Service
	q      queue.Queue
}

// New creates a handler. q may be nil when no worker is deployed.
func New(cfg config.App, pend *pending.Service, att *attendance.Service, ros *roster.Service, q queue.Queue) *Handler {
	return &Handler{cfg: cfg, pend: pend, att: att, roster: ros, q: q}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	public := r.Group("/v1", httpmiddleware.NewTokenBucket(h.cfg.RateLimitPerMin, h.cfg.RateLimitPerMin).GinMiddleware())
	public.GET("/pending/:token", h.pendingByToken)
	public.POST("/pending/:token/resolve", h.resolveStudent)

	r.POST("/v1/admin/login", h.adminLogin)

	admin := r.Group("/v1", auth.AdminAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	admin.GET("/admin/pending", h.listPending)
	admin.PUT("/admin/pending/:id", h.resolveAdmin)
	admin.DELETE("/admin/pending/cleanup", h.cleanup)

	admin.POST("/attendance/signin", h.signIn)
	admin.POST("/attendance/signout", h.signOut)
	admin.POST("/attendance/forgot", h.forgotSignOut)
	admin.GET("/attendance", h.listAttendance)
	admin.GET("/attendance/stats", h.stats)

	admin.GET("/students", h.listStudents)
	admin.POST("/students", h.createStudent)
	admin.GET("/students/:ufid", h.getStudent)
	admin.PUT("/students/:ufid", h.updateStudent)
	admin.DELETE("/students/:ufid", h.deleteStudent)
}

// pendingView is the wire shape of a pending record. Display status and
// rounded hours are computed at the edge; storage keeps full precision.
type pendingView struct {
	ID            string     `json:"id"`
	UFID          string     `json:"ufid"`
	Name          string     `json:"name"`
	SignInAt      time.Time  `json:"sign_in_at"`
	Deadline      time.Time  `json:"deadline"`
	Status        string     `json:"status"`
	DisplayStatus string     `json:"display_status"`
	SignOutAt     *time.Time `json:"sign_out_at,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	PresentOnly   bool       `json:"present_only,omitempty"`
	HoursWorked   float64    `json:"hours_worked"`
}

func toView(rec model.PendingSignout, now time.Time) pendingView {
	return pendingView{
		ID:            rec.ID,
		UFID:          rec.UFID,
		Name:          rec.Name,
		SignInAt:      rec.SignInAt,
		Deadline:      rec.Deadline,
		Status:        rec.Status,
		DisplayStatus: rec.DisplayStatus(now),
		SignOutAt:     rec.SubmittedSignOutAt,
		ResolvedBy:    rec.ResolvedBy,
		PresentOnly:   rec.PresentOnly,
		HoursWorked:   math.Round(rec.HoursWorked()*100) / 100,
	}
}

// studentError maps engine errors for the token form. Store failures never
// leak internals; the student sees a generic retryable message.
func studentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pending.ErrNotFound):
		metrics.ResolutionRejected.WithLabelValues("not_found").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "this link is not valid"})
	case errors.Is(err, pending.ErrAlreadyResolved):
		metrics.ResolutionRejected.WithLabelValues("already_resolved").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "this sign-out was already submitted"})
	case errors.Is(err, pending.ErrDeadlineExpired):
		metrics.ResolutionRejected.WithLabelValues("deadline").Inc()
		c.JSON(http.StatusGone, gin.H{"error": "the submission window has closed, contact a lab admin"})
	case errors.Is(err, pending.ErrInvalidTime):
		metrics.ResolutionRejected.WithLabelValues("invalid_time").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "enter a time after your sign-in"})
	case errors.Is(err, pending.ErrCrossDay):
		metrics.ResolutionRejected.WithLabelValues("cross_day").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "sign-out must be on the same day as sign-in"})
	default:
		log.Printf("pending store failure: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary problem, please try again"})
	}
}

func (h *Handler) pendingByToken(c *gin.Context) {
	rec, err := h.pend.LookupByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		studentError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(rec, h.pend.Now()))
}

func (h *Handler) resolveStudent(c *gin.Context) {
	var req struct {
		ClockTime string `json:"clock_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "enter a sign-out time"})
		return
	}
	rec, err := h.pend.ResolveByStudent(c.Request.Context(), c.Param("token"), req.ClockTime)
	if err != nil {
		studentError(c, err)
		return
	}
	metrics.PendingResolved.WithLabelValues(model.ResolvedByStudent).Inc()
	h.publish(c.Request.Context(), queue.Message{
		Type: queue.TypePendingResolved, RecordID: rec.ID, UFID: rec.UFID,
		ResolvedBy: rec.ResolvedBy, At: time.Now().UTC(),
	})
	c.JSON(http.StatusOK, toView(rec, h.pend.Now()))
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.cfg.AdminPasswordHash == "" || !auth.CheckPassword(h.cfg.AdminPasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tokens, err := auth.Issue("admin", auth.RoleAdmin, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) listPending(c *gin.Context) {
	recs, counts, err := h.pend.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	now := h.pend.Now()
	views := make([]pendingView, 0, len(recs))
	for _, r := range recs {
		views = append(views, toView(r, now))
	}
	c.JSON(http.StatusOK, gin.H{"pending_signouts": views, "counts": counts})
}

func (h *Handler) resolveAdmin(c *gin.Context) {
	var req struct {
		SignOutTime *time.Time `json:"sign_out_time"`
		PresentOnly bool       `json:"present_only"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.pend.ResolveByAdmin(c.Request.Context(), c.Param("id"), pending.AdminResolution{
		SignOutAt:   req.SignOutTime,
		PresentOnly: req.PresentOnly,
	})
	if err != nil {
		h.adminError(c, err)
		return
	}
	metrics.PendingResolved.WithLabelValues(model.ResolvedByAdmin).Inc()
	h.publish(c.Request.Context(), queue.Message{
		Type: queue.TypePendingResolved, RecordID: rec.ID, UFID: rec.UFID,
		ResolvedBy: rec.ResolvedBy, At: time.Now().UTC(),
	})
	c.JSON(http.StatusOK, toView(rec, h.pend.Now()))
}

func (h *Handler) cleanup(c *gin.Context) {
	maxAge := 30
	if v := c.Query("max_age_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_days must be a positive integer"})
			return
		}
		maxAge = parsed
	}
	removed, err := h.pend.Cleanup(c.Request.Context(), maxAge)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	metrics.CleanupRemoved.Add(float64(removed))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// adminError surfaces engine errors as structured responses for the
// dashboard to display inline.
func (h *Handler) adminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pending.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, pending.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pending.ErrInvalidTime):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

type ufidRequest struct {
	UFID string `json:"ufid" binding:"required"`
}

func (h *Handler) signIn(c *gin.Context) {
	var req ufidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evt, err := h.att.SignIn(c.Request.Context(), req.UFID)
	if err != nil {
		h.attendanceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (h *Handler) signOut(c *gin.Context) {
	var req ufidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evt, err := h.att.SignOut(c.Request.Context(), req.UFID)
	if err != nil {
		h.attendanceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (h *Handler) forgotSignOut(c *gin.Context) {
	var req ufidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.att.ForgotSignOut(c.Request.Context(), req.UFID)
	if err != nil {
		h.attendanceError(c, err)
		return
	}
	metrics.PendingCreated.Inc()
	h.publish(c.Request.Context(), queue.Message{
		Type: queue.TypePendingCreated, RecordID: rec.ID, UFID: rec.UFID, At: time.Now().UTC(),
	})
	// the token goes back to the caller, who hands the link to the student
	c.JSON(http.StatusCreated, gin.H{
		"id":       rec.ID,
		"token":    rec.Token,
		"deadline": rec.Deadline,
	})
}

func (h *Handler) attendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrUnknownStudent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotSignedIn):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

func (h *Handler) listAttendance(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	events, total, err := h.att.List(c.Request.Context(), c.Query("ufid"), c.Query("action"), limit, offset)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

func (h *Handler) stats(c *gin.Context) {
	rows, err := h.att.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	for i := range rows {
		rows[i].Hours = math.Round(rows[i].Hours*100) / 100
	}
	c.JSON(http.StatusOK, gin.H{"students": rows})
}

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.roster.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

type studentRequest struct {
	UFID  string `json:"ufid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) createStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.roster.Create(c.Request.Context(), req.UFID, req.Name, req.Email)
	if err != nil {
		h.rosterError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) getStudent(c *gin.Context) {
	st, err := h.roster.Get(c.Request.Context(), c.Param("ufid"))
	if err != nil {
		h.rosterError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := h.roster.Update(c.Request.Context(), c.Param("ufid"), req.Name, req.Email)
	if err != nil {
		h.rosterError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.roster.Delete(c.Request.Context(), c.Param("ufid")); err != nil {
		h.rosterError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) rosterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

func (h *Handler) publish(ctx context.Context, msg queue.Message) {
	if h.q == nil {
		return
	}
	if err := h.q.Publish(ctx, msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
