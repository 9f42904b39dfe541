// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package nephila

import (
	"go.uber.org/ratelimit"
)

// LimitInterface 限速器接口
type LimitInterface interface {
	// CheckAndWaitLimiterPass 检查当前接收连接的速率
	// 如果速率达到上限则等待
	CheckAndWaitLimiterPass() error
}

// DefaultLimiter 默认的限速器,基于漏桶算法
type DefaultLimiter struct {
	limiter ratelimit.Limiter
	rate    int
}

// NewDefaultLimiter 创建一个新的限速器
// limitRate 每秒最多接收的连接数,小于等于0时不限速
func NewDefaultLimiter(limitRate int) *DefaultLimiter {
	if limitRate <= 0 {
		return &DefaultLimiter{
			limiter: ratelimit.NewUnlimited(),
			rate:    0,
		}
	}
	return &DefaultLimiter{
		limiter: ratelimit.New(limitRate, ratelimit.WithoutSlack),
		rate:    limitRate,
	}
}

// CheckAndWaitLimiterPass 实现LimitInterface
func (d *DefaultLimiter) CheckAndWaitLimiterPass() error {
	d.limiter.Take()
	return nil
}

// Rate 每秒速率,0表示不限速
func (d *DefaultLimiter) Rate() int {
	return d.rate
}
