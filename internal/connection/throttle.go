// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package connection

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxThrottleBurst caps a single token-bucket reservation so one big
// write doesn't demand an outsized burst allowance up front.
const maxThrottleBurst = 256 * 1024

// ThrottledWriter is an io.Writer that limits its write rate to a fixed
// number of bytes per second using a token bucket, used to cap a single
// connection's reply bandwidth.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledWriter wraps w with a bytesPerSec rate limit. A
// bytesPerSec <= 0 returns w unchanged (no throttling).
func NewThrottledWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxThrottleBurst {
		burst = maxThrottleBurst
	}

	return &ThrottledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

// Write implements io.Writer, splitting writes larger than the burst
// size into chunks so the rate limit applies gradually rather than as
// one large up-front reservation.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return total, err
		}
		n, err := tw.w.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}
