package rest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/config"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/internal/jsonld"
	"github.com/graftnet/graft/internal/present/rest/presenter"
	"github.com/graftnet/graft/internal/service"
	"github.com/graftnet/graft/internal/usecase"
	"github.com/graftnet/graft/oid"
)

type Handler struct {
	config   config.Config
	account  *usecase.AccountUsecase
	activity *usecase.ActivityUsecase
	object   *usecase.ObjectUsecase
	codec    *jsonld.Manager
	signal   *service.SignalService
	render   *service.RenderService
}

func NewHandler(
	config config.Config,
	account *usecase.AccountUsecase,
	activity *usecase.ActivityUsecase,
	object *usecase.ObjectUsecase,
	codec *jsonld.Manager,
	signal *service.SignalService,
	render *service.RenderService,
) *Handler {
	return &Handler{
		config:   config,
		account:  account,
		activity: activity,
		object:   object,
		codec:    codec,
		signal:   signal,
		render:   render,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/new-account", h.handleNewAccount)
	e.GET("/of/:ref", h.handleActor)
	e.GET("/by/:ref", h.handleOutbox)
	e.POST("/by/:ref", h.handleSubmit)
	e.GET("/for/:ref", h.handleInbox)
	e.GET("/post/:ref", h.handlePost)
	e.GET("/activity/:id", h.handleActivity)
	e.GET("/log/:id", h.handleChangelog)
	e.GET("/realtime", h.handleRealtime)
}

// requestURL rebuilds the request's public URL from the node identity.
// Relative identifiers in responses resolve against it.
func (h *Handler) requestURL(c echo.Context) string {
	return h.config.Node.Scheme + "://" + h.config.Node.FQDN + c.Request().URL.RequestURI()
}

// refID extracts and validates the opaque id of a decorated path segment.
func refID(c echo.Context, name string) (string, error) {
	id := graft.ExtractID(c.Param(name))
	if !oid.IsHex(id) {
		return "", domain.BadRequestError{Reason: "invalid `id`"}
	}
	return id, nil
}

// serveDocument resolves a stored document into its response form: the
// stored compact form is expanded, then compacted against the negotiated
// response context with the request URL as base.
func (h *Handler) serveDocument(c echo.Context, stored *document.Map, actor bool) error {
	ctx := c.Request().Context()
	opts := jsonld.Options{Base: h.requestURL(c)}

	var expanded *document.Map
	var err error
	if actor {
		expanded, err = h.codec.UnstripActor(ctx, stored, opts)
	} else {
		expanded, err = h.codec.Unstrip(ctx, stored, opts)
	}
	if err != nil {
		return presenter.InternalError(c, err)
	}

	profiles := profilesOf(c.Request().Header.Get(echo.HeaderAccept))
	jctx := h.codec.ResponseContext(stored, profiles)
	out, err := h.codec.Compact(ctx, expanded, jctx, opts)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return writeActivityJSON(c, out)
}

// writeActivityJSON emits an ActivityPub payload with an xxh3 ETag.
func writeActivityJSON(c echo.Context, v document.Value) error {
	body, err := document.Encode(v)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	c.Response().Header().Set("ETag", fmt.Sprintf(`"%016x"`, xxh3.Hash(body)))
	return c.Blob(http.StatusOK, graft.MimeActivityJSON, body)
}

func (h *Handler) handleNewAccount(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return presenter.BadRequestMessage(c, "cannot read request body")
	}
	doc, err := document.ParseMap(raw)
	if err != nil {
		return presenter.BadRequestMessage(c, "request body is not a JSON object")
	}

	ctx := c.Request().Context()
	opts := jsonld.Options{Base: h.requestURL(c)}
	result, err := h.account.Create(ctx, doc, jsonld.ContextList(doc), opts)
	if err != nil {
		return presenter.Error(c, err)
	}
	location := "/of/" + result.ID
	if result.Name != "" {
		location = "/of/" + result.Name + "-" + result.ID
	}
	return presenter.Created(c, location, result)
}

func (h *Handler) handleActor(c echo.Context) error {
	if !isActivityPub(c.Request().Header.Get(echo.HeaderAccept)) {
		return presenter.NotImplemented(c, "profile pages are not implemented")
	}
	id, err := refID(c, "ref")
	if err != nil {
		return presenter.Error(c, err)
	}
	stored, err := h.object.Get(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return h.serveDocument(c, stored, true)
}

func (h *Handler) handleOutbox(c echo.Context) error {
	if !isActivityPub(c.Request().Header.Get(echo.HeaderAccept)) {
		return presenter.NotImplemented(c, "outbox has no page view")
	}
	id, err := refID(c, "ref")
	if err != nil {
		return presenter.Error(c, err)
	}

	ctx := c.Request().Context()
	items, err := h.object.ActivitiesBy(ctx, id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return h.serveCollection(c, items)
}

// handleInbox serves the actor's inbox shell. Delivery is not built, so
// the collection is always empty.
func (h *Handler) handleInbox(c echo.Context) error {
	if !isActivityPub(c.Request().Header.Get(echo.HeaderAccept)) {
		return presenter.NotImplemented(c, "inbox has no page view")
	}
	if _, err := refID(c, "ref"); err != nil {
		return presenter.Error(c, err)
	}
	return h.serveCollection(c, nil)
}

// serveCollection emits an OrderedCollection whose items are resolved the
// same way standalone documents are.
func (h *Handler) serveCollection(c echo.Context, stored []*document.Map) error {
	ctx := c.Request().Context()
	opts := jsonld.Options{Base: h.requestURL(c)}
	profiles := profilesOf(c.Request().Header.Get(echo.HeaderAccept))

	items := make(document.Array, 0, len(stored))
	for _, doc := range stored {
		expanded, err := h.codec.Unstrip(ctx, doc, opts)
		if err != nil {
			return presenter.InternalError(c, err)
		}
		jctx := h.codec.ResponseContext(doc, profiles)
		out, err := h.codec.Compact(ctx, expanded, jctx, opts)
		if err != nil {
			return presenter.InternalError(c, err)
		}
		out.Delete("@context")
		items = append(items, out)
	}

	collection := document.NewMap()
	collection.Set("@context", document.String(graft.NamespaceAS))
	collection.Set("id", document.String(opts.Base))
	collection.Set("type", document.String(domain.TypeOrderedCollection))
	collection.Set("items", items)
	return writeActivityJSON(c, collection)
}

func (h *Handler) handleSubmit(c echo.Context) error {
	if !isActivityPub(c.Request().Header.Get(echo.HeaderContentType)) {
		return presenter.MethodNotAllowed(c)
	}
	actor, err := refID(c, "ref")
	if err != nil {
		return presenter.Error(c, err)
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return presenter.BadRequestMessage(c, "cannot read request body")
	}
	doc, err := document.ParseMap(raw)
	if err != nil {
		return presenter.BadRequestMessage(c, "request body is not a JSON object")
	}

	ctx := c.Request().Context()
	opts := jsonld.Options{Base: h.requestURL(c)}
	result, err := h.activity.Submit(ctx, actor, doc, jsonld.ContextList(doc), opts)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, "/activity/"+result.ActivityID, map[string]string{
		"id":   result.ActivityID,
		"type": result.Verb.String(),
	})
}

func (h *Handler) handlePost(c echo.Context) error {
	at, id, hasTime, err := graft.SplitVersionRef(c.Param("ref"))
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	if !oid.IsHex(id) {
		return presenter.BadRequestMessage(c, "invalid `id`")
	}

	ctx := c.Request().Context()
	var stored *document.Map
	if hasTime {
		stored, err = h.object.GetAt(ctx, id, at)
	} else {
		stored, err = h.object.Get(ctx, id)
	}
	if err != nil {
		return presenter.Error(c, err)
	}

	if isActivityPub(c.Request().Header.Get(echo.HeaderAccept)) {
		return h.serveDocument(c, stored, false)
	}
	return h.servePostPage(c, id, stored)
}

// servePostPage routes the HTML variant through the render worker, with
// the current replies as additional props.
func (h *Handler) servePostPage(c echo.Context, id string, stored *document.Map) error {
	if h.render == nil {
		return presenter.NotImplemented(c, "page rendering is not configured")
	}
	ctx := c.Request().Context()

	replies, err := h.object.Replies(ctx, id)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	replyProps := make([]any, 0, len(replies))
	for _, reply := range replies {
		replyProps = append(replyProps, document.ToAny(reply))
	}

	page, err := h.render.Render(ctx, "post", map[string]any{
		"post":    document.ToAny(stored),
		"replies": replyProps,
	})
	if err != nil {
		return presenter.InternalError(c, err)
	}
	html := "<!DOCTYPE html><html><head>" + page.Head + "</head><body>" + page.Body + "</body></html>"
	return c.HTML(http.StatusOK, html)
}

func (h *Handler) handleActivity(c echo.Context) error {
	if !isActivityPub(c.Request().Header.Get(echo.HeaderAccept)) {
		return presenter.NotImplemented(c, "activities have no page view")
	}
	id, err := refID(c, "id")
	if err != nil {
		return presenter.Error(c, err)
	}
	stored, err := h.object.Get(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	return h.serveDocument(c, stored, false)
}

// handleChangelog returns every stored version of an object as-is. There
// is deliberately no page view for the changelog; web clients fetch it
// over the ActivityPub interface themselves.
func (h *Handler) handleChangelog(c echo.Context) error {
	if !isActivityPub(c.Request().Header.Get(echo.HeaderAccept)) {
		return presenter.NotImplemented(c, "the changelog has no page view")
	}
	id, err := refID(c, "id")
	if err != nil {
		return presenter.Error(c, err)
	}
	versions, err := h.object.History(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err)
	}
	history := make(document.Array, 0, len(versions))
	for _, v := range versions {
		history = append(history, v)
	}
	return writeActivityJSON(c, history)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type realtimeRequest struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

// socketConn is the slice of the websocket connection the pump needs.
type socketConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	input := make(chan []string)
	defer close(input)
	output := make(chan graft.Event)
	defer close(output)

	go h.signal.Realtime(ctx, input, output)

	runSocket(ctx, ws, input, output)
	return nil
}

// runSocket pumps decoded events out and subscription requests in until
// either side of the connection fails. The quit channel is buffered so the
// reader's final send cannot block after the write loop has already
// returned.
func runSocket(ctx context.Context, conn socketConn, input chan<- []string, output <-chan graft.Event) {
	quit := make(chan struct{}, 1)

	go func() {
		for {
			var req realtimeRequest
			err := conn.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				quit <- struct{}{}
				break
			}

			switch req.Type {
			case "listen":
				input <- req.Prefixes
				slog.DebugContext(
					ctx, fmt.Sprintf("Socket subscribe: %s", req.Prefixes),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return
		case event := <-output:
			err := conn.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return
			}
		}
	}
}
