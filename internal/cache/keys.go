package cache

import "fmt"

// Key layout, kept in one place.
func MsgKey(id int64) string         { return fmt.Sprintf("msg:%d", id) }
func AllSetKey(toID int64) string    { return fmt.Sprintf("user:%d:msg", toID) }
func NoReadSetKey(toID int64) string { return fmt.Sprintf("user:%d:msg:noread", toID) }

// sentinel is stored in place of real data to record a confirmed miss.
const sentinel = "nil"

// exField marks a sentinel message hash.
const exField = "_ex"

var msgFields = []string{
	"id",
	"extra_title",
	"extra_content",
	"to_id",
	"from_id",
	"read",
	"created_at",
	"url",
	exField,
}
