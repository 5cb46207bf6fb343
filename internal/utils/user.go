package utils

import (
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultAvatarURL 用户未设置头像时使用
const DefaultAvatarURL = "/images/default_profile_pic.jpg"

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{4,20}$`)

// ValidUsername reports whether name is 4-20 characters of letters, digits, dot, dash or underscore.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// AvatarOrDefault returns url, or the default avatar when url is blank.
func AvatarOrDefault(url string) string {
	if strings.TrimSpace(url) == "" {
		return DefaultAvatarURL
	}
	return url
}

// HashPassword 使用 bcrypt 生成密码哈希
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword 校验明文密码与哈希是否匹配
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
