package testkit

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
)

func authUser(id int64, firstName string) authdomain.User {
	return authdomain.User{
		ID:        snowflake.ID(id),
		Email:     strings.ToLower(firstName) + "@example.com",
		FirstName: firstName,
		Role:      authdomain.RoleUser,
	}
}
