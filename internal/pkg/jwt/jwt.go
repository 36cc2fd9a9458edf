package jwt

import (
	"errors"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const TokenTypeAccess = "access"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongType    = errors.New("token is not an access token")
)

type Service interface {
	GenerateAccessToken(actor user.Actor) (token string, expiresAt int64, err error)
	ActorFromClaims(claims map[string]interface{}) (user.Actor, error)
	JWTAuth() *jwtauth.JWTAuth
}

type JWTService struct {
	secretKey                 string
	accessTokenExpirationTime string
	tokenAuth                 *jwtauth.JWTAuth
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func NewJWTService(secretKey string, accessTokenExpirationTime string) Service {
	return &JWTService{
		secretKey:                 secretKey,
		accessTokenExpirationTime: accessTokenExpirationTime,
		tokenAuth:                 jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
	}
}

// GenerateAccessToken issues tokens with the same claims as the HR identity
// service, so locally minted tokens are interchangeable with real ones.
func (j *JWTService) GenerateAccessToken(actor user.Actor) (token string, expiresAt int64, err error) {
	expDuration, err := time.ParseDuration(j.accessTokenExpirationTime)
	if err != nil {
		return "", 0, err
	}
	expiresAt = time.Now().Add(expDuration).Unix()

	claims := map[string]interface{}{
		"user_id":     actor.UserID,
		"employee_id": j.returnValueOrNil(actor.EmployeeID),
		"role":        string(actor.Role),
		"type":        TokenTypeAccess,
		"exp":         expiresAt,
	}

	_, tokenString, err := j.tokenAuth.Encode(claims)
	return tokenString, expiresAt, err
}

func (j *JWTService) ActorFromClaims(claims map[string]interface{}) (user.Actor, error) {
	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != TokenTypeAccess {
		return user.Actor{}, ErrWrongType
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return user.Actor{}, user.ErrMissingIdentity
	}

	role, _ := claims["role"].(string)
	if !user.Role(role).Valid() {
		return user.Actor{}, ErrInvalidToken
	}

	employeeID, _ := claims["employee_id"].(string)

	return user.Actor{
		UserID:     userID,
		EmployeeID: employeeID,
		Role:       user.Role(role),
	}, nil
}

func (j *JWTService) returnValueOrNil(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
