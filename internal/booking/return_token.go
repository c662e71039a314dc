package booking

import (
	"crypto/rand"
	"fmt"

	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type returnClaims struct {
	Status models.PaymentStatus `json:"st"`
	jwt.RegisteredClaims
}

func randomSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("booking: read random return secret: %v", err))
	}
	return secret
}

// returnToken signs the status a return URL carries for one payment
// reference, so an edited status no longer matches.
func (s *BookingService) returnToken(status models.PaymentStatus, reference string) (string, error) {
	claims := returnClaims{
		Status: status,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  reference,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.returnSecret)
}

// returnTokenValid reports whether token was minted by returnToken for this
// status and reference.
func (s *BookingService) returnTokenValid(token string, status models.PaymentStatus, reference string) bool {
	if token == "" {
		return false
	}
	claims := &returnClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.returnSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Subject == reference && claims.Status.Succeeded() == status.Succeeded()
}
