package auth

import (
	"errors"
	"net/mail"
	"strings"
)

const (
	KindEmail = "email"
	KindPhone = "phone"
)

var ErrBadIdentifier = errors.New("identifier must be an email address or phone number")

type Identifier struct {
	Kind  string
	Value string
}

// ParseIdentifier normalizes an email (lower-cased) or a phone number
// (digits with a leading +, 10 to 15 digits). Bare 10 digit numbers are
// taken as Indian mobile numbers.
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, ErrBadIdentifier
	}

	if strings.Contains(raw, "@") {
		addr, err := mail.ParseAddress(raw)
		if err != nil || addr.Address != raw || len(raw) > 255 {
			return Identifier{}, ErrBadIdentifier
		}
		return Identifier{Kind: KindEmail, Value: strings.ToLower(raw)}, nil
	}

	var digits strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0, r == ' ', r == '-':
		default:
			return Identifier{}, ErrBadIdentifier
		}
	}
	d := digits.String()
	if len(d) == 10 && !strings.HasPrefix(raw, "+") {
		d = "91" + d
	}
	if len(d) < 10 || len(d) > 15 {
		return Identifier{}, ErrBadIdentifier
	}
	return Identifier{Kind: KindPhone, Value: "+" + d}, nil
}

func (id Identifier) String() string {
	return id.Value
}
