package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/classync/classync/core"
)

var (
	salt       = []byte("classync.core.user.password_reset")
	tokenEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	NowFunc    = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// MakeToken generates a password reset token for usr: "<minutes since epoch, base 36>-<hmac>".
// it is invalidated by a password change, a new login or a deactivation of usr.
func MakeToken(usr User, conf *core.Config) (string, error) {
	return makeToken(usr, tokenMinutes(NowFunc()), conf.SecretKey), nil
}

// verifyToken checks that a password reset token for usr is genuine and younger than conf.Server.PasswordResetTimeoutDelta.
func verifyToken(usr User, token string, conf *core.Config) error {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(parts[0], 36, 64)
	if err != nil || ts < 0 {
		return errInvalidToken
	}

	if !hmac.Equal([]byte(makeToken(usr, ts, conf.SecretKey)), []byte(token)) {
		return errInvalidToken
	}

	age := time.Duration(tokenMinutes(NowFunc())-ts) * time.Minute
	if age > conf.Server.PasswordResetTimeoutDelta {
		return errTokenExpired
	}
	return nil
}

func tokenMinutes(t time.Time) int64 {
	return int64(t.Sub(tokenEpoch) / time.Minute)
}

func makeToken(usr User, ts int64, secretKey string) string {
	key := sha256.Sum256(append(append([]byte{}, salt...), secretKey...))
	mac := hmac.New(sha256.New, key[:])
	mac.Write(tokenPayload(usr, ts))
	return strconv.FormatInt(ts, 36) + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func tokenPayload(usr User, ts int64) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.FormatBool(usr.IsActive))
	val.WriteString(strconv.FormatInt(ts, 10))
	return val.Bytes()
}
