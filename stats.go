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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// RequestStats 处理的请求总数
	RequestStats string = "requests"
	// ConnectionStats 接收的连接总数
	ConnectionStats string = "connections"
	// ErrorStats 错误总数,包括解析失败和写入失败
	ErrorStats string = "errors"
	// UniqueRequestStats 指纹去重后的请求数
	UniqueRequestStats string = "unique_requests"
)

// RuntimeStatus 服务运行状态
type RuntimeStatus struct {
	mu       sync.RWMutex
	StartAt  int64
	StopAt   int64
	StatusOn StatusType
}

// NewRuntimeStatus 初始状态为ON_STOP
func NewRuntimeStatus() *RuntimeStatus {
	return &RuntimeStatus{
		StatusOn: ON_STOP,
	}
}

// Start 标记服务启动
func (r *RuntimeStatus) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartAt = time.Now().UnixMilli()
	r.StopAt = 0
	r.StatusOn = ON_START
}

// Stop 标记服务停止
func (r *RuntimeStatus) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopAt = time.Now().UnixMilli()
	r.StatusOn = ON_STOP
}

// GetStatusOn 当前状态
func (r *RuntimeStatus) GetStatusOn() StatusType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StatusOn
}

// GetStartAt 启动时间戳,毫秒
func (r *RuntimeStatus) GetStartAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StartAt
}

// GetStopAt 停止时间戳,毫秒
func (r *RuntimeStatus) GetStopAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StopAt
}

// GetDuration 运行时长,单位秒,保留两位小数
// 未启动时为0,已停止时为启动到停止的时长
func (r *RuntimeStatus) GetDuration() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.StartAt == 0 {
		return 0
	}
	end := r.StopAt
	if end == 0 {
		end = time.Now().UnixMilli()
	}
	return decimal.New(end-r.StartAt, -3).Round(2).InexactFloat64()
}

// StatisticInterface 数据统计组件接口
type StatisticInterface interface {
	GetAllStats() map[string]uint64
	Incr(metric string)
	Get(metric string) uint64
}

// StatusMetric 响应状态码对应的指标名
func StatusMetric(status int) string {
	return strconv.Itoa(status)
}

// DefaultStatistic 进程内的统计指标
type DefaultStatistic struct {
	// Metrics 指标在构造时全部分配,之后只做原子加减
	Metrics  map[string]*uint64
	register sync.Map
}

// NewDefaultStatistic 默认统计数据组件构造函数
func NewDefaultStatistic() *DefaultStatistic {
	m := map[string]*uint64{
		RequestStats:       new(uint64),
		ConnectionStats:    new(uint64),
		ErrorStats:         new(uint64),
		UniqueRequestStats: new(uint64),
	}
	for code := range statusText {
		m[StatusMetric(code)] = new(uint64)
	}
	return &DefaultStatistic{
		Metrics:  m,
		register: sync.Map{},
	}
}

// Incr 指标加一,未知的指标被忽略
func (s *DefaultStatistic) Incr(metric string) {
	v, ok := s.Metrics[metric]
	if !ok {
		return
	}
	atomic.AddUint64(v, 1)
	s.register.Store(metric, true)
}

// Get 获取某个指标的数值
func (s *DefaultStatistic) Get(metric string) uint64 {
	v, ok := s.Metrics[metric]
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v)
}

// GetAllStats 所有出现过的指标
func (s *DefaultStatistic) GetAllStats() map[string]uint64 {
	result := make(map[string]uint64)
	s.register.Range(func(key any, _ any) bool {
		k := key.(string)
		result[k] = s.Get(k)
		return true
	})
	return result
}
