package logging

import (
	"context"

	"github.com/google/uuid"
)

type debugTagKey struct{}

// WithDebug marks ctx so that C* logging calls made with it are written regardless of the
// logger's level and carry a debug_tag field. An empty tag is replaced by a short random one.
func WithDebug(ctx context.Context, tag string) context.Context {
	if tag == "" {
		tag = uuid.NewString()[:8]
	}
	return context.WithValue(ctx, debugTagKey{}, tag)
}

// DebugTag returns the tag attached by WithDebug, or "".
func DebugTag(ctx context.Context) string {
	tag, _ := ctx.Value(debugTagKey{}).(string)
	return tag
}
