package engine

import (
	"context"
	"maps"
)

// TempDirAttribute is the root context attribute holding the temporary
// directory handlers may write scratch files to.
const TempDirAttribute = "httpservice.context.tempdir"

type contextKey int

const (
	attributesKey contextKey = iota
	registrationKey
	sessionScopeKey
)

// Attribute returns a root context attribute for a request handled by the engine
func Attribute(ctx context.Context, key string) (any, bool) {
	attrs, _ := ctx.Value(attributesKey).(map[string]any)
	v, ok := attrs[key]
	return v, ok
}

// TempDir returns the temporary directory attribute, or "" if unset
func TempDir(ctx context.Context) string {
	v, _ := Attribute(ctx, TempDirAttribute)
	dir, _ := v.(string)
	return dir
}

// InitParams returns a copy of the init parameters the serving handler was
// registered with
func InitParams(ctx context.Context) map[string]string {
	reg, ok := ctx.Value(registrationKey).(*registration)
	if !ok {
		return nil
	}
	return maps.Clone(reg.initParams)
}

// HandlerName returns the registration name of the serving handler
func HandlerName(ctx context.Context) string {
	reg, ok := ctx.Value(registrationKey).(*registration)
	if !ok {
		return ""
	}
	return reg.name
}

func withAttributes(ctx context.Context, attrs map[string]any) context.Context {
	return context.WithValue(ctx, attributesKey, attrs)
}

func withRegistration(ctx context.Context, reg *registration) context.Context {
	return context.WithValue(ctx, registrationKey, reg)
}
