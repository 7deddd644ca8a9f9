package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/temiloluwa-oss/arkiva/internal/core"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"rate limited", core.ErrRateLimited, ClassTransient},
		{"wrapped rate limited", fmt.Errorf("embed: %w", core.ErrRateLimited), ClassTransient},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"unknown", errors.New("connection reset"), ClassTransient},
		{"invalid input", core.ErrInvalidInput, ClassPermanent},
		{"diagnosed", Permanent("no text layer"), ClassPermanent},
		{"dimension mismatch", &core.DimensionError{Want: 768, Got: 512}, ClassPermanent},
		{"partial", &PartialError{Embedded: 1, Total: 2, Cause: core.ErrInvalidInput}, ClassPermanent},
		{"quota", core.ErrQuotaExceeded, ClassQuota},
		{"wrapped quota", fmt.Errorf("ocr: %w", core.ErrQuotaExceeded), ClassQuota},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestPartialErrorMessageAndUnwrap(t *testing.T) {
	cause := core.ErrRateLimited
	err := &PartialError{Embedded: 2, Total: 5, Cause: cause}
	assert.Equal(t, "embedded 2 of 5 chunks: rate limited", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt, base, max)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max+max/5, "attempt %d exceeded the cap plus jitter", attempt)
	}

	// Later attempts must not shrink below earlier floors.
	early := backoffDelay(1, base, max)
	late := backoffDelay(6, base, max)
	assert.Greater(t, late, early)
}
