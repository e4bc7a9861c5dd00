// context.go propagates report tags and custom data through context.Context.

package crashline

import (
	"context"
	"maps"
)

type tagsKey struct{}
type customDataKey struct{}

// WithTags returns a context carrying tags in addition to any already attached.
// Recover and ProcessHost attach them to the reports they send.
func WithTags(ctx context.Context, tags ...string) context.Context {
	existing := TagsFromContext(ctx)
	merged := make([]string, 0, len(existing)+len(tags))
	merged = append(merged, existing...)
	merged = append(merged, tags...)
	return context.WithValue(ctx, tagsKey{}, merged)
}

// TagsFromContext returns the tags attached to ctx, or nil.
func TagsFromContext(ctx context.Context) []string {
	tags, _ := ctx.Value(tagsKey{}).([]string)
	return tags
}

// WithCustomData returns a context carrying data merged over any already attached.
func WithCustomData(ctx context.Context, data map[string]any) context.Context {
	merged := maps.Clone(CustomDataFromContext(ctx))
	if merged == nil {
		merged = make(map[string]any, len(data))
	}
	maps.Copy(merged, data)
	return context.WithValue(ctx, customDataKey{}, merged)
}

// CustomDataFromContext returns the custom data attached to ctx, or nil.
func CustomDataFromContext(ctx context.Context) map[string]any {
	data, _ := ctx.Value(customDataKey{}).(map[string]any)
	return data
}
