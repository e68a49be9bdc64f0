package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrPermDenied = errors.New("Missing permissions to execute action")

type Perm string
type Perms map[Perm]struct{}

func NewPerms(perms ...Perm) Perms {
	ps := Perms{}
	for _, p := range perms {
		ps[p] = struct{}{}
	}
	return ps
}

const (
	PermReadOwn       Perm = "read_own"
	PermDeleteOwn     Perm = "delete_own"
	PermSendOne       Perm = "send_one"
	PermSendBroadcast Perm = "send_broadcast"
	PermManageAll     Perm = "manage_all"
)

var PermsUser = NewPerms(
	PermReadOwn,
	PermDeleteOwn,
)

var PermsService = PermsUser.Union(NewPerms(
	PermSendOne,
))

var PermsAdmin = PermsService.Union(NewPerms(
	PermSendBroadcast,
	PermManageAll,
))

// ParsePerms reads a space separated list, ignoring unknown entries.
func ParsePerms(s string) Perms {
	known := PermsAdmin
	ps := Perms{}
	for _, f := range strings.Fields(s) {
		if _, ok := known[Perm(f)]; ok {
			ps[Perm(f)] = struct{}{}
		}
	}
	return ps
}

type ErrMissingPerms struct {
	Perms []Perm
}

func (mp ErrMissingPerms) Error() string {
	return fmt.Sprintf("missing permission %s", mp.Perms)
}

func (mp ErrMissingPerms) Unwrap() error {
	return ErrPermDenied
}

func (ps Perms) Require(reqPerms ...Perm) error {
	missing := []Perm{}
	for _, p := range reqPerms {
		if _, ok := ps[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return ErrMissingPerms{missing}
	}
	return nil
}

func (ps Perms) Check(reqPerms ...Perm) bool {
	return ps.Require(reqPerms...) == nil
}

func (ps Perms) List() []Perm {
	perms := []Perm{}
	for k := range ps {
		perms = append(perms, k)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

func (ps Perms) String() string {
	strs := []string{}
	for _, p := range ps.List() {
		strs = append(strs, string(p))
	}
	return strings.Join(strs, " ")
}

func (ps Perms) SubsetOf(ps2 Perms) bool {
	for p := range ps {
		if _, ok := ps2[p]; !ok {
			return false
		}
	}
	return true
}
func (ps Perms) Union(ps2 Perms) Perms {
	allPerms := []Perm{}
	for p := range ps {
		allPerms = append(allPerms, p)
	}
	for p := range ps2 {
		allPerms = append(allPerms, p)
	}
	return NewPerms(allPerms...)
}
