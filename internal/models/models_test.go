package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerms(t *testing.T) {
	require := require.New(t)
	ps := NewPerms(PermReadOwn)
	err := ps.Require(
		PermReadOwn,
		PermSendBroadcast,
	)
	require.Error(err)
	require.True(errors.Is(err, ErrPermDenied))

	var missing ErrMissingPerms
	require.True(errors.As(err, &missing))
	require.Equal([]Perm{PermSendBroadcast}, missing.Perms)

	require.True(PermsUser.SubsetOf(PermsService))
	require.True(PermsService.SubsetOf(PermsAdmin))
	require.False(PermsAdmin.SubsetOf(PermsUser))
}

func TestParsePerms(t *testing.T) {
	require := require.New(t)
	ps := ParsePerms("read_own  send_broadcast bogus")
	require.Equal(NewPerms(PermReadOwn, PermSendBroadcast), ps)
	require.Equal("read_own send_broadcast", ps.String())
	require.Empty(ParsePerms(""))
}

func TestUserCan(t *testing.T) {
	u := User{ID: 3, Perms: PermsUser}
	require.True(t, u.Can(PermReadOwn))
	require.False(t, u.Can(PermManageAll))
}
