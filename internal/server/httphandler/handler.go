package httphandler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/valyala/fasthttp"

	"github.com/yndnr/forkhttpd/internal/infra/buildinfo"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

// Options configures a Handler.
type Options struct {
	// Root is the directory served as "/", as seen by this process.
	Root string
	// IndexPage is the path served for "/".
	IndexPage string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger  logger.Logger
	Metrics *metric.Registry
}

// Handler serves static files. It is safe for concurrent use.
type Handler struct {
	root    string
	index   string
	srv     *fasthttp.Server
	logger  logger.Logger
	metrics *metric.Registry
}

// New creates a handler.
func New(opts Options) *Handler {
	h := &Handler{
		root:    opts.Root,
		index:   opts.IndexPage,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if h.logger == nil {
		h.logger = logger.Nop()
	}
	if h.index == "" {
		h.index = "/index.html"
	}

	h.srv = &fasthttp.Server{
		Handler:          h.handle,
		ErrorHandler:     h.handleError,
		Name:             buildinfo.ServerName(),
		DisableKeepalive: true,
		ReadTimeout:      opts.ReadTimeout,
		WriteTimeout:     opts.WriteTimeout,
		Logger:           fasthttpLogger{h.logger},
	}
	return h
}

// ServeConn reads one request from c and writes one response. The caller
// closes c.
func (h *Handler) ServeConn(c net.Conn) error {
	return h.srv.ServeConn(c)
}

func (h *Handler) handle(ctx *fasthttp.RequestCtx) {
	defer h.observe(ctx)

	if !ctx.IsGet() && !ctx.IsHead() {
		writeError(ctx, fasthttp.StatusNotImplemented)
		return
	}

	reqPath := path.Clean("/" + string(ctx.Path()))
	if reqPath == "/" {
		reqPath = h.index
	}
	full := filepath.Join(h.root, filepath.FromSlash(reqPath))

	f, err := os.Open(full)
	if err != nil {
		writeError(ctx, statusForOpenError(err))
		return
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		writeError(ctx, fasthttp.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		f.Close()
		writeError(ctx, fasthttp.StatusForbidden)
		return
	}

	ctype, err := contentType(full, f)
	if err != nil {
		f.Close()
		writeError(ctx, statusForOpenError(err))
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(ctype)
	ctx.Response.Header.SetLastModified(info.ModTime())

	if ctx.IsHead() {
		f.Close()
		ctx.Response.Header.SetContentLength(int(info.Size()))
		return
	}
	// fasthttp closes the stream once the body is written.
	ctx.SetBodyStream(f, int(info.Size()))
}

func (h *Handler) handleError(ctx *fasthttp.RequestCtx, err error) {
	defer h.observe(ctx)

	var small *fasthttp.ErrSmallBuffer
	var netErr net.Error
	switch {
	case errors.As(err, &small):
		writeError(ctx, fasthttp.StatusRequestHeaderFieldsTooLarge)
	case errors.As(err, &netErr) && netErr.Timeout():
		writeError(ctx, fasthttp.StatusRequestTimeout)
	default:
		writeError(ctx, fasthttp.StatusBadRequest)
	}
	h.logger.Debug("malformed request", "remote", ctx.RemoteAddr().String(), "error", err)
}

func (h *Handler) observe(ctx *fasthttp.RequestCtx) {
	status := ctx.Response.StatusCode()
	h.metrics.Response(status)
	h.logger.Debug("request served",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"status", status,
		"remote", ctx.RemoteAddr().String())
}

// contentType picks the media type by extension and falls back to sniffing
// the first bytes of f. f is rewound afterwards.
func contentType(name string, f *os.File) (string, error) {
	if ctype := mime.TypeByExtension(filepath.Ext(name)); ctype != "" {
		return ctype, nil
	}
	m, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return m.String(), nil
}

func statusForOpenError(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fasthttp.StatusNotFound
	case errors.Is(err, os.ErrPermission):
		return fasthttp.StatusForbidden
	default:
		return fasthttp.StatusInternalServerError
	}
}

// ErrorPage renders the HTML body sent with an error status.
func ErrorPage(status int) string {
	text := fasthttp.StatusMessage(status)
	return fmt.Sprintf("<html><head><title>%d %s</title></head><body><h2>%d: %s</h2></body></html>\n",
		status, text, status, text)
}

func writeError(ctx *fasthttp.RequestCtx, status int) {
	ctx.Response.Reset()
	ctx.SetStatusCode(status)
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBodyString(ErrorPage(status))
}

type fasthttpLogger struct {
	l logger.Logger
}

func (f fasthttpLogger) Printf(format string, args ...any) {
	f.l.Debug(fmt.Sprintf(format, args...), "component", "fasthttp")
}
