package game

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/draw-guess/internal/errors"
)

var (
	usernameChars   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	roomCodePattern = regexp.MustCompile(`^[A-Z]{6}$`)
)

// 用户名长度
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// ValidateUsername 校验并返回去掉首尾空白的用户名
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < MinUsernameLength || n > MaxUsernameLength {
		return "", errors.New(errors.ErrInvalidUsername)
	}
	if !usernameChars.MatchString(name) {
		return "", errors.New(errors.ErrInvalidUsername).
			WithMessage("Username can only contain letters, numbers, and underscores")
	}
	return name, nil
}

// NormalizeRoomCode 转大写并校验房间号格式
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !roomCodePattern.MatchString(code) {
		return "", errors.New(errors.ErrInvalidRoomCode)
	}
	return code, nil
}
