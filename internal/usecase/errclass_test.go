package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/usecase"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want entity.ErrorKind
	}{
		{"typed soft", &entity.FetchError{StatusCode: 404, Kind: entity.KindSoft}, entity.KindSoft},
		{"typed transient", &entity.FetchError{StatusCode: 503, Kind: entity.KindTransient}, entity.KindTransient},
		{"typed wins over message", &entity.FetchError{Kind: entity.KindSystemic, Err: errors.New("timeout")}, entity.KindSystemic},
		{"untyped fetch error falls back to message", &entity.FetchError{Err: errors.New("net::ERR_CONNECTION_RESET: connection reset")}, entity.KindTransient},
		{"fatal sentinel", fmt.Errorf("llm rejected credentials: %w", entity.ErrFatal), entity.KindFatal},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), entity.KindTransient},
		{"soft signature", errors.New("Could not fetch product page"), entity.KindSoft},
		{"no product", errors.New("no product name in jsonld payload"), entity.KindSoft},
		{"econnreset", errors.New("read: ECONNRESET"), entity.KindTransient},
		{"dns", errors.New("dial tcp: lookup shop.test: no such host"), entity.KindTransient},
		{"socket hang up", errors.New("socket hang up"), entity.KindTransient},
		{"unexpected eof", errors.New("unexpected EOF"), entity.KindTransient},
		{"anything else", errors.New("json: cannot unmarshal number into string"), entity.KindSystemic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usecase.ClassifyError(tt.err))
		})
	}
	assert.Equal(t, entity.ErrorKind(""), usecase.ClassifyError(nil))
}
