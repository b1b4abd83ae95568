package cheat_report

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/r4g3baby/cheat-report/database"
	"golang.org/x/crypto/bcrypt"
)

type (
	// Tokens issues and verifies the bearer credentials handed out at login.
	Tokens struct {
		secret []byte
		ttl    time.Duration
		now    func() time.Time
	}

	Claims struct {
		Username string `json:"username"`
		IsAdmin  bool   `json:"isAdmin"`
		jwt.RegisteredClaims
	}
)

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (tokens *Tokens) Issue(account *database.Account) (string, error) {
	now := tokens.now()
	claims := Claims{
		Username: account.Username,
		IsAdmin:  account.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokens.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tokens.secret)
}

func (tokens *Tokens) Parse(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return tokens.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(tokens.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}

func (claims *Claims) AccountID() (uint64, error) {
	return strconv.ParseUint(claims.Subject, 10, 64)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
