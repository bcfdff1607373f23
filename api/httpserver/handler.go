package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"lobcast/domain/orderbook"
	"lobcast/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	booksBasePath  = "/api/v1/books"
	streamBasePath = "/api/v1/stream"
)

var errBadDepth = errors.New("depth must be a non-negative integer")

type Options struct {
	DefaultDepth int
	PingInterval time.Duration
	Metrics      http.Handler
}

// Handler serves book snapshots over REST and live messages over
// WebSocket.
type Handler struct {
	router   *gin.Engine
	engine   *service.Engine
	opts     Options
	upgrader websocket.Upgrader
	ready    atomic.Bool
	log      zerolog.Logger
}

func NewHandler(engine *service.Engine, opts Options, log zerolog.Logger) *Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	h := &Handler{
		router: router,
		engine: engine,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "http").Logger(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// SetReady flips /readyz once the process has finished starting.
func (h *Handler) SetReady(ready bool) { h.ready.Store(ready) }

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.healthz)
	h.router.GET("/readyz", h.readyz)
	if h.opts.Metrics != nil {
		h.router.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}

	books := h.router.Group(booksBasePath)
	{
		books.GET("", h.listBooks)
		books.GET("/:instrument", h.getBook)
	}
	h.router.GET(streamBasePath+"/:instrument", h.stream)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	if !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handler) listBooks(c *gin.Context) {
	ids := h.engine.Instruments()
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		out = append(out, gin.H{
			"instrument_id": id,
			"subscribers":   h.engine.SubscriberCount(id),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getBook(c *gin.Context) {
	id := orderbook.InstrumentID(c.Param("instrument"))
	depth, err := h.depth(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	view, err := h.engine.SnapshotView(id, depth)
	if err != nil {
		if errors.Is(err, orderbook.ErrUnknownInstrument) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) depth(c *gin.Context) (int, error) {
	raw := c.Query("depth")
	if raw == "" {
		return h.opts.DefaultDepth, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 0 {
		return 0, errBadDepth
	}
	return d, nil
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
