package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles issued by the external identity provider. The scheduling core trusts
// these and enforces only resource ownership.
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// Claims is the token payload this service consumes: an opaque subject
// identity plus a role.
type Claims struct {
	Subject uuid.UUID `json:"-"`
	Role    string    `json:"role"`
	jwt.RegisteredClaims
}

type JWTService interface {
	ValidateToken(token string) (*Claims, error)
	GenerateToken(subject uuid.UUID, role string) (string, error)
}

type jwtService struct {
	secret      []byte
	expiryHours int
}

func NewJWTService(secret string, expiryHours int) JWTService {
	return &jwtService{secret: []byte(secret), expiryHours: expiryHours}
}

func (s *jwtService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("missing subject: %w", err)
	}
	subject, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("malformed subject: %w", err)
	}
	claims.Subject = subject

	if claims.Role != RoleDoctor && claims.Role != RolePatient {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	return claims, nil
}

func (s *jwtService) GenerateToken(subject uuid.UUID, role string) (string, error) {
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expiryHours) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
