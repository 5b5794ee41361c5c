package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/clinic/core"
	"github.com/trezcool/clinic/core/session"
	"github.com/trezcool/clinic/core/user"
)

var (
	tokenContextKey = "userToken"
	contextUserKey  = "user"
	tokenAudience   = "Clinic"
)

// Claims represents the authorization claims transmitted via a JWT.
// The token ID (jti) is the ID of the session it was issued for.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

func GetSessionClaims(conf *core.Config, sess session.Session) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        sess.ID,
			Issuer:    conf.AppName,
			Subject:   sess.User.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: sess.User.Username,
		Role:     sess.User.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// jwtMiddleware reads the token from tokenLookup (eg. "header:Authorization", "query:token").
func jwtMiddleware(conf *core.Config, tokenLookup string) echo.MiddlewareFunc {
	return middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
		TokenLookup:   tokenLookup,
	})
}

// sessionMiddleware rejects tokens whose session has ended, and puts the session user in the context.
func sessionMiddleware(sessions session.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			sess, err := sessions.Get(claims.Subject)
			if err != nil || sess.ID != claims.Id {
				return errSessionEnded
			}
			ctx.Set(contextUserKey, sess.User)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// contextActor returns the authenticated user, or the zero User on unauthenticated routes.
func contextActor(ctx echo.Context) user.User {
	usr, _ := getContextUser(ctx)
	return usr
}
