package issuer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"
)

// Issuer mints and verifies ticket credentials. A credential is an
// HMAC-signed token over the ticket, event and user identities, enough for a
// redemption scanner to verify provenance offline. Issuance is deterministic:
// the same ticket always yields the same credential, so re-issuing can never
// invalidate an already-distributed ticket.
type Issuer struct {
	secret []byte
}

type Claims struct {
	TicketID string
	EventID  int64
	UserID   string
}

var ErrInvalidCredential = errors.New("invalid ticket credential")

func New(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

func (i *Issuer) Issue(ticketID string, eventID int64, userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"ticket_id": ticketID,
		"event_id":  strconv.FormatInt(eventID, 10),
		"user_id":   userID,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

func (i *Issuer) Verify(credential string) (*Claims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	ticketID, ok := claims["ticket_id"].(string)
	if !ok {
		return nil, ErrInvalidCredential
	}
	eventIDStr, ok := claims["event_id"].(string)
	if !ok {
		return nil, ErrInvalidCredential
	}
	eventID, err := strconv.ParseInt(eventIDStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidCredential
	}

	return &Claims{TicketID: ticketID, EventID: eventID, UserID: userID}, nil
}

// RenderQR returns the credential as a scannable PNG data URL.
func (i *Issuer) RenderQR(credential string) (string, error) {
	png, err := qrcode.Encode(credential, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
