package id

import (
	"strconv"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Generator struct {
	lastToken atomic.Int64
	now       func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback_" + strconv.FormatInt(g.nextToken(), 36)
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateConversationID() string {
	return g.generate("cv")
}

func (g *Generator) GenerateMessageID() string {
	return g.generate("cm")
}

func (g *Generator) GenerateUserID() string {
	return g.generate("cu")
}

// GenerateRoomID returns room_<owner>_<token> where token never repeats or
// decreases within this process, even if the wall clock steps backwards.
func (g *Generator) GenerateRoomID(ownerUserID string) string {
	return "room_" + ownerUserID + "_" + strconv.FormatInt(g.nextToken(), 36)
}

func (g *Generator) nextToken() int64 {
	for {
		last := g.lastToken.Load()
		next := g.now().UnixMicro()
		if next <= last {
			next = last + 1
		}
		if g.lastToken.CompareAndSwap(last, next) {
			return next
		}
	}
}
