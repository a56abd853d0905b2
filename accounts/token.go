package accounts

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedGrant indicates a password-grant response that is missing
// one or more of the required access_token, expires_in, token_type keys.
var ErrMalformedGrant = errors.New("grant response missing required fields")

// AccessToken is a short-lived credential issued by an account server's
// password grant. It is immutable once constructed and replaced
// wholesale on re-authentication.
type AccessToken struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at the given instant:
// non-empty and unexpired.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Token != "" && now.Before(t.ExpiresAt)
}

// AccountInfo pairs an access token with the optional profile fields the
// grant response carried. The zero value holds an invalid token.
type AccountInfo struct {
	AccessToken   AccessToken
	ProfileFields map[string]string
}

// Username returns the profile username, or "" when the grant response
// did not include one.
func (a AccountInfo) Username() string {
	return a.ProfileFields["username"]
}

// AccountFromGrant builds an AccountInfo from a parsed password-grant
// response. The expiry is now plus the response's expires_in seconds,
// kept at second precision so it survives serialization unchanged.
// String fields of a "user" object, if present, become profile fields.
func AccountFromGrant(doc gjson.Result, now time.Time) (AccountInfo, error) {
	token := doc.Get("access_token")
	expiresIn := doc.Get("expires_in")
	tokenType := doc.Get("token_type")

	if !token.Exists() || !expiresIn.Exists() || !tokenType.Exists() {
		return AccountInfo{}, ErrMalformedGrant
	}

	info := AccountInfo{
		AccessToken: AccessToken{
			Token:     token.String(),
			TokenType: tokenType.String(),
			ExpiresAt: time.Unix(now.Unix()+expiresIn.Int(), 0),
		},
	}

	if user := doc.Get("user"); user.IsObject() {
		info.ProfileFields = make(map[string]string)
		user.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				info.ProfileFields[key.String()] = value.String()
			}

			return true
		})
	}

	return info, nil
}

// storedAccount is the persisted shape of an AccountInfo. The field
// names are part of the settings contract; do not rename.
type storedAccount struct {
	Token         string            `json:"token"`
	TokenType     string            `json:"tokenType"`
	ExpiresAt     int64             `json:"expiresAt"`
	ProfileFields map[string]string `json:"profileFields,omitempty"`
}

// MarshalJSON encodes the account in its persisted shape, with the
// expiry as a unix timestamp.
func (a AccountInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(storedAccount{
		Token:         a.AccessToken.Token,
		TokenType:     a.AccessToken.TokenType,
		ExpiresAt:     a.AccessToken.ExpiresAt.Unix(),
		ProfileFields: a.ProfileFields,
	})
}

// UnmarshalJSON decodes the persisted shape written by MarshalJSON.
func (a *AccountInfo) UnmarshalJSON(data []byte) error {
	var stored storedAccount
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	a.AccessToken = AccessToken{
		Token:     stored.Token,
		TokenType: stored.TokenType,
		ExpiresAt: time.Unix(stored.ExpiresAt, 0),
	}
	a.ProfileFields = stored.ProfileFields

	return nil
}
