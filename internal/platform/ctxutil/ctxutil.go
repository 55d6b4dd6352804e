package ctxutil

import "context"

type ctxKey int

const requestDataKey ctxKey = iota

// RequestData carries per-request caller identity resolved by middleware.
// UserID is empty when the request carried no verifiable identity.
type RequestData struct {
	UserID string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	rd, _ := ctx.Value(requestDataKey).(*RequestData)
	return rd
}
