package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/event"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 12
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// validatePassword enforces 8 to 12 characters with at least one lowercase
// letter, one uppercase letter and one digit.
func validatePassword(password string) error {
	length := len([]rune(password))
	if length < minPasswordLength || length > maxPasswordLength {
		return apierror.BadRequest(
			fmt.Sprintf("Password must be %d-%d characters long", minPasswordLength, maxPasswordLength), "password")
	}

	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return apierror.BadRequest(
			"Password must contain at least one lowercase letter, one uppercase letter and one digit", "password")
	}
	return nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// newRawToken returns a fresh emailed token and the hash that is stored.
func newRawToken() (raw string, hash string) {
	raw = uuid.NewString()
	return raw, hashToken(raw)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func publish(bus event.Bus, e event.Event) {
	if bus != nil {
		bus.Publish(e)
	}
}

func actorEvent(t event.Type, actor model.AuditActor) event.Event {
	return event.Event{
		Type:      t,
		ActorID:   actor.UserID,
		ActorName: actor.Username,
		ActorRole: actor.Role,
		ActorIP:   actor.IP,
	}
}
