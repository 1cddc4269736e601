package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cbegin/dnasonify-go"
	"github.com/cbegin/dnasonify-go/internal/export"
	"github.com/cbegin/dnasonify-go/internal/sequence"
	"github.com/cbegin/dnasonify-go/internal/sonify"
	"github.com/cbegin/dnasonify-go/internal/synth"
	"github.com/cbegin/dnasonify-go/internal/transport"
	"github.com/cbegin/dnasonify-go/internal/waveform"
)

// Register mounts the session routes.
func Register(router gin.IRoutes, reg *Registry) {
	router.POST("/sessions", NewCreateHandler(reg))
	router.DELETE("/sessions/:id", NewDeleteHandler(reg))
	router.GET("/sessions/:id/state", NewStateHandler(reg))
	router.GET("/sessions/:id/stats", NewStatsHandler(reg))
	router.GET("/sessions/:id/frame", NewFrameHandler(reg))
	router.GET("/sessions/:id/notes", NewNotesHandler(reg))
	router.POST("/sessions/:id/play", NewControlHandler(reg, (*dnasonify.Session).Play))
	router.POST("/sessions/:id/pause", NewControlHandler(reg, (*dnasonify.Session).Pause))
	router.POST("/sessions/:id/reset", NewControlHandler(reg, (*dnasonify.Session).Reset))
	router.POST("/sessions/:id/seek", NewSeekHandler(reg))
	router.POST("/sessions/:id/tick", NewTickHandler(reg))
	router.POST("/sessions/:id/method", NewMethodHandler(reg))
	router.POST("/sessions/:id/volume", NewVolumeHandler(reg))
	router.GET("/sessions/:id/export.wav", NewWAVHandler(reg))
	router.GET("/sessions/:id/export.mid", NewMIDIHandler(reg))
	router.GET("/sessions/:id/export.abc", NewABCHandler(reg))
}

// CreateRequest is the body of POST /sessions. Exactly one of Sequence and
// FASTA is expected; Config fields override the server defaults.
type CreateRequest struct {
	Sequence string           `json:"sequence"`
	FASTA    string           `json:"fasta"`
	Label    string           `json:"label"`
	Strict   bool             `json:"strict"`
	Config   dnasonify.Config `json:"config"`
}

// SessionResponse describes a session.
type SessionResponse struct {
	ID         string                      `json:"id"`
	SequenceID string                      `json:"sequenceId"`
	Label      string                      `json:"label"`
	Length     int                         `json:"length"`
	State      transport.State             `json:"state"`
	Attributes dnasonify.MusicalAttributes `json:"attributes"`
}

// StatsResponse pairs composition statistics with the musical summary.
type StatsResponse struct {
	Stats      sequence.Stats              `json:"stats"`
	Attributes dnasonify.MusicalAttributes `json:"attributes"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
}

// writeError maps engine errors to status codes.
func writeError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	var verr *sequence.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		if verr.Position >= 0 {
			resp.Position = &verr.Position
		}
	case errors.Is(err, sequence.ErrValidation),
		errors.Is(err, dnasonify.ErrConfig),
		errors.Is(err, synth.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dnasonify.ErrNoSequence):
		status = http.StatusConflict
	case errors.Is(err, ErrFull):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func lookup(reg *Registry, c *gin.Context) (*dnasonify.Session, bool) {
	s, err := reg.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

func describe(s *dnasonify.Session) SessionResponse {
	resp := SessionResponse{ID: s.ID(), State: s.State()}
	if seq := s.Sequence(); seq != nil {
		resp.SequenceID = seq.ID()
		resp.Label = seq.Label()
		resp.Length = seq.Len()
	}
	resp.Attributes, _ = s.Attributes()
	return resp
}

// NewCreateHandler builds the POST /sessions handler
func NewCreateHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		req := CreateRequest{Config: reg.Defaults()}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Error parsing request: "+err.Error())
			return
		}
		if (req.Sequence == "") == (req.FASTA == "") {
			badRequest(c, "exactly one of sequence or fasta is required")
			return
		}
		s, err := reg.Create(req.Config)
		if err != nil {
			writeError(c, err)
			return
		}
		opts := sequence.Options{Label: req.Label, Strict: req.Strict}
		if req.FASTA != "" {
			_, err = s.LoadFASTAFrom(strings.NewReader(req.FASTA), opts)
		} else {
			_, err = s.LoadSequence(req.Sequence, opts)
		}
		if err != nil {
			reg.Delete(s.ID())
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, describe(s))
	}
}

func NewDeleteHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		if err := reg.Delete(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func NewStateHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, s.State())
	}
}

func NewStatsHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		st, err := s.Stats()
		if err != nil {
			writeError(c, err)
			return
		}
		attrs, err := s.Attributes()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, StatsResponse{Stats: st, Attributes: attrs})
	}
}

// NewFrameHandler serves GET /sessions/:id/frame?width=100&span=0.
func NewFrameHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		width, err := strconv.Atoi(c.DefaultQuery("width", strconv.Itoa(waveform.DefaultWidth)))
		if err != nil || width <= 0 || width > 10000 {
			badRequest(c, "width must be an integer in 1..10000")
			return
		}
		span, err := strconv.ParseFloat(c.DefaultQuery("span", "0"), 64)
		if err != nil || span < 0 {
			badRequest(c, "span must be a non-negative number")
			return
		}
		f, err := s.Frame(width, waveform.View{Span: span})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, f)
	}
}

// NewNotesHandler serves the note list as JSON (default) or YAML.
func NewNotesHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		format := export.NoteFormat(c.DefaultQuery("format", string(export.JSON)))
		var buf bytes.Buffer
		if err := s.ExportNotes(&buf, format); err != nil {
			if format != export.JSON && format != export.YAML {
				badRequest(c, err.Error())
				return
			}
			writeError(c, err)
			return
		}
		contentType := "application/json"
		if format == export.YAML {
			contentType = "application/yaml"
		}
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}

func NewControlHandler(reg *Registry, op func(*dnasonify.Session) (transport.State, error)) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		st, err := op(s)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

func NewSeekHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		var req seekRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Position == nil {
			badRequest(c, "body must be {\"position\": seconds}")
			return
		}
		st, err := s.Seek(*req.Position)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type tickRequest struct {
	ElapsedMs float64 `json:"elapsedMs"`
}

// NewTickHandler advances playback by the elapsed milliseconds reported by
// the client's timer.
func NewTickHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		var req tickRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body must be {\"elapsedMs\": n}")
			return
		}
		st, err := s.Tick(time.Duration(req.ElapsedMs * float64(time.Millisecond)))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type methodRequest struct {
	Method string `json:"method"`
}

func NewMethodHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		var req methodRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body must be {\"method\": name}")
			return
		}
		m, err := sonify.ParseMethod(req.Method)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := s.SetMethod(m); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, describe(s))
	}
}

type volumeRequest struct {
	Volume float64 `json:"volume"`
}

func NewVolumeHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		var req volumeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "body must be {\"volume\": 0..1}")
			return
		}
		s.SetVolume(req.Volume)
		c.JSON(http.StatusOK, s.State())
	}
}

// NewWAVHandler streams the composition; ?format=pcm16 selects 16-bit output.
func NewWAVHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		format, err := export.ParseFormat(c.Query("format"))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if _, err := s.Stats(); err != nil {
			writeError(c, err)
			return
		}
		c.Header("Content-Type", "audio/wav")
		c.Header("Content-Disposition", `attachment; filename="`+s.ID()+`.wav"`)
		c.Status(http.StatusOK)
		if err := s.ExportWAV(c.Request.Context(), c.Writer, format); err != nil {
			c.Error(err)
		}
	}
}

func NewMIDIHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		var buf bytes.Buffer
		if err := s.ExportMIDI(&buf); err != nil {
			writeError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+s.ID()+`.mid"`)
		c.Data(http.StatusOK, "audio/midi", buf.Bytes())
	}
}

// NewABCHandler serves the composition as ABC sheet music.
func NewABCHandler(reg *Registry) func(c *gin.Context) {
	return func(c *gin.Context) {
		s, ok := lookup(reg, c)
		if !ok {
			return
		}
		var buf bytes.Buffer
		if err := s.ExportABC(&buf); err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/vnd.abc; charset=utf-8", buf.Bytes())
	}
}
