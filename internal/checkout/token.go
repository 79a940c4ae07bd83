package checkout

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"blogshop/internal/models"
)

// returnClaims ride on the gateway's return and cancel URLs so the callback
// can be tied back to the order without trusting query parameters.
type returnClaims struct {
	OrderID int64 `json:"order_id"`
	jwt.RegisteredClaims
}

type tokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (s tokenSigner) sign(order *models.Order) (string, error) {
	now := s.now()
	claims := returnClaims{
		OrderID: order.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(order.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s tokenSigner) parse(token string) (*returnClaims, error) {
	var claims returnClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: return token: %v", models.ErrInvalid, err)
	}
	return &claims, nil
}
