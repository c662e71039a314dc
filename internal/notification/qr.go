package notification

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidTicket = errors.New("invalid ticket token")

// TicketClaims is what the door staff's scanner reads back from a QR code.
type TicketClaims struct {
	BookingID string `json:"b"`
	EventID   string `json:"e"`
	Seats     int    `json:"s"`
}

// QRGenerator seals ticket claims with AES-GCM and renders them as QR codes.
type QRGenerator struct {
	aead cipher.AEAD
}

func NewQRGenerator(secret string) (*QRGenerator, error) {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &QRGenerator{aead: aead}, nil
}

// Token seals the claims into a URL-safe string.
func (q *QRGenerator) Token(claims TicketClaims) (string, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Token.
func (q *QRGenerator) Open(token string) (TicketClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return TicketClaims{}, ErrInvalidTicket
	}
	size := q.aead.NonceSize()
	if len(raw) <= size {
		return TicketClaims{}, ErrInvalidTicket
	}
	data, err := q.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return TicketClaims{}, ErrInvalidTicket
	}
	var claims TicketClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return TicketClaims{}, ErrInvalidTicket
	}
	return claims, nil
}

// PNG renders the sealed claims as a QR code image.
func (q *QRGenerator) PNG(claims TicketClaims) ([]byte, error) {
	token, err := q.Token(claims)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, 256)
}
