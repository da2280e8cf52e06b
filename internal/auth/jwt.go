package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"steam-inventory/internal/services/inventory"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the Steam account a request acts for.
type Claims struct {
	SteamID string `json:"steam_id"`
	jwt.RegisteredClaims
}

// Owner parses the SteamID carried by the token.
func (c *Claims) Owner() (inventory.SteamID, error) {
	return inventory.ParseSteamID(c.SteamID)
}

type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken signs an HS256 token for steamID.
func (s *Service) GenerateToken(steamID inventory.SteamID) (string, error) {
	now := s.now()
	claims := Claims{
		SteamID: steamID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   steamID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken checks signature and expiry and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.Owner(); err != nil {
		return nil, fmt.Errorf("%w: steam_id: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
