package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/analytics"
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/live"
	"github.com/trezcool/clinic/core/user"
)

// live message types
const (
	liveError     = "error"
	liveAnalytics = "analytics"
)

// LiveMessage is a message pushed on a live stream. Payload is a full snapshot of the collection.
type LiveMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type liveApi struct {
	conf     *core.Config
	logger   core.Logger
	userSvc  user.Service
	caseSvc  cases.Service
	upgrader websocket.Upgrader
}

func registerLiveAPI(g *echo.Group, opts *Options, authed ...echo.MiddlewareFunc) {
	api := &liveApi{
		conf:    opts.Conf,
		logger:  opts.Logger,
		userSvc: opts.UserSvc,
		caseSvc: opts.CaseSvc,
	}
	api.upgrader = websocket.Upgrader{CheckOrigin: api.checkOrigin}

	g.GET("/live/:collection", api.stream, authed...)
}

// checkOrigin accepts same-host handshakes and the ones coming from the front-end.
func (api *liveApi) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host) || strings.EqualFold(strings.TrimRight(origin, "/"), api.conf.FrontendBaseURL)
}

func (api *liveApi) stream(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	collection := ctx.Param("collection")
	switch collection {
	case core.CollectionCases, core.CollectionProgress:
	case core.CollectionUsers, liveAnalytics:
		if !usr.IsAdmin() {
			return errHttpForbidden
		}
	default:
		return errUnknownLiveTopic
	}

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	defer conn.Close()

	// the stream lives as long as the connection
	sctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(msg LiveMessage) bool {
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return false
		}
		return true
	}

	if collection == liveAnalytics {
		api.streamAnalytics(sctx, usr, send)
		return nil
	}
	for snap := range api.watch(sctx, usr, collection) {
		if !api.sendSnapshot(collection, usr, snap, send) {
			break
		}
	}
	return nil
}

// watch scopes the subscription to what the user may see.
func (api *liveApi) watch(ctx context.Context, usr user.User, collection string) <-chan live.Snapshot {
	switch collection {
	case core.CollectionCases:
		return api.caseSvc.WatchCases(ctx, cases.CaseFilter{AssignedTo: studentScope(usr)})
	case core.CollectionProgress:
		return api.caseSvc.WatchProgress(ctx, cases.ProgressFilter{UserID: studentScope(usr)})
	default:
		return api.userSvc.Watch(ctx, user.QueryFilter{})
	}
}

// sendSnapshot reports subscription errors without ending the stream.
func (api *liveApi) sendSnapshot(typ string, usr user.User, snap live.Snapshot, send func(LiveMessage) bool) bool {
	if snap.Err != nil {
		api.logger.Error("live "+typ+" subscription: "+snap.Err.Error(), snap.Err, usr)
		return send(LiveMessage{Type: liveError, Error: snap.Err.Error()})
	}
	return send(LiveMessage{Type: typ, Payload: snap.Items})
}

// streamAnalytics recomputes the projection on every users or cases snapshot.
func (api *liveApi) streamAnalytics(ctx context.Context, usr user.User, send func(LiveMessage) bool) {
	usersC := api.userSvc.Watch(ctx, user.QueryFilter{})
	casesC := api.caseSvc.WatchCases(ctx, cases.CaseFilter{})

	var (
		users        []user.User
		all          []cases.Case
		haveU, haveC bool
	)
	for usersC != nil || casesC != nil {
		var snap live.Snapshot
		var ok bool
		select {
		case snap, ok = <-usersC:
			if !ok {
				usersC = nil
				continue
			}
			if snap.Err == nil {
				users, haveU = snap.Items.([]user.User), true
			}
		case snap, ok = <-casesC:
			if !ok {
				casesC = nil
				continue
			}
			if snap.Err == nil {
				all, haveC = snap.Items.([]cases.Case), true
			}
		}

		if snap.Err != nil {
			if !api.sendSnapshot(liveAnalytics, usr, snap, send) {
				return
			}
			continue
		}
		if haveU && haveC && !send(LiveMessage{Type: liveAnalytics, Payload: analytics.Project(users, all)}) {
			return
		}
	}
}
