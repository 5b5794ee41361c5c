package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
)

var contextCaseKey = "object"

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.IsAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// caseMiddleware loads the `:id` Case into the context. Students only see the cases assigned to them;
// admins see every case unless ownerOnly is set.
func caseMiddleware(svc cases.Service, ownerOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			c, err := svc.Get(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == cases.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding case by ID")
			}
			switch {
			case c.AssignedTo == usr.ID:
			case usr.IsAdmin() && !ownerOnly:
			case usr.IsAdmin():
				return errHttpForbidden
			default:
				return errHttpNotFound
			}

			ctx.Set(contextCaseKey, c)
			return next(ctx)
		}
	}
}

func getContextCase(ctx echo.Context) (cases.Case, error) {
	if c, ok := ctx.Get(contextCaseKey).(cases.Case); ok {
		return c, nil
	}
	return cases.Case{}, errors.New("case object not found in echo.Context")
}

// loginLimiter throttles requests per client IP. Limiters idle for longer than idleTTL are evicted.
type loginLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	limiters  map[string]*ipLimiter
	now       func() time.Time
}

type ipLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

const minLimiterIdleTTL = time.Minute

func newLoginLimiter(perSecond float64, burst int) *loginLimiter {
	if burst < 1 {
		burst = 1
	}
	// an evicted limiter must have refilled its whole burst, so eviction never loosens the throttle
	ttl := minLimiterIdleTTL
	if perSecond > 0 {
		if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	return &loginLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  ttl,
		limiters: make(map[string]*ipLimiter),
		now:      time.Now,
	}
}

func (l *loginLimiter) allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	l.sweep(now)
	lim, ok := l.limiters[ip]
	if !ok {
		lim = &ipLimiter{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = lim
	}
	lim.lastSeen = now
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

// sweep drops idle limiters, at most once per idleTTL. l.mu must be held.
func (l *loginLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for ip, lim := range l.limiters {
		if now.Sub(lim.lastSeen) >= l.idleTTL {
			delete(l.limiters, ip)
		}
	}
}

func (l *loginLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *loginLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !l.allow(ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// studentScope restricts a query to the user's own records when they are not an admin.
func studentScope(usr user.User) string {
	if usr.IsAdmin() {
		return ""
	}
	return usr.ID
}
