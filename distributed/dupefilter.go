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

package distributed

import (
	"context"
	"time"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
	"github.com/spaolacci/murmur3"
	"github.com/wetrycode/nephila"
)

// RedisDupeFilter 基于redis bitmap的布隆过滤器,多个服务实例共享请求指纹
type RedisDupeFilter struct {
	// rdb redis客户端支持redis单机实例和redis cluster集群模式
	rdb redis.Cmdable
	// key bitmap对应的key
	key string
	// ttl 大于0时每次写入后刷新过期时间
	ttl time.Duration
	// bloomM bitset 大小
	bloomM uint
	// bloomK hash函数个数
	bloomK uint
	// fingerprint 复用进程内去重组件的指纹算法
	fingerprint *nephila.RFPDupeFilter
}

// NewRedisDupeFilter bloomN数据规模,bloomP容错率
func NewRedisDupeFilter(bloomN uint, bloomP float64, rdb redis.Cmdable, key string, ttl time.Duration) *RedisDupeFilter {
	m, k := bloom.EstimateParameters(bloomN, bloomP)
	return &RedisDupeFilter{
		rdb:         rdb,
		key:         key,
		ttl:         ttl,
		bloomM:      m,
		bloomK:      k,
		fingerprint: nephila.NewRFPDupeFilter(bloomP, 1),
	}
}

// Fingerprint request指纹计算
func (d *RedisDupeFilter) Fingerprint(request *nephila.Request) ([]byte, error) {
	return d.fingerprint.Fingerprint(request)
}

// DoDupeFilter 实现nephila.RFPDupeFilterInterface
func (d *RedisDupeFilter) DoDupeFilter(request *nephila.Request) (bool, error) {
	fp, err := d.Fingerprint(request)
	if err != nil {
		return false, err
	}
	return d.TestOrAdd(fp)
}

// TestOrAdd 如果指纹已经存在则返回true,否则添加指纹并返回false
func (d *RedisDupeFilter) TestOrAdd(fingerprint []byte) (bool, error) {
	isExists, err := d.isExists(fingerprint)
	if err != nil {
		return false, err
	}
	if isExists {
		return true, nil
	}
	return false, d.Add(fingerprint)
}

// baseHashes 生成hash值
func (d *RedisDupeFilter) baseHashes(data []byte) [4]uint64 {
	hasher := murmur3.New128()
	hasher.Write(data) // #nosec
	v1, v2 := hasher.Sum128()
	hasher.Write([]byte{1}) // #nosec
	v3, v4 := hasher.Sum128()
	return [4]uint64{v1, v2, v3, v4}
}

// offset 第i个hash函数在bitmap中的偏移量
func (d *RedisDupeFilter) offset(h [4]uint64, i uint) int64 {
	ii := uint64(i)
	location := h[ii%2] + ii*h[2+(((ii+(ii%2))%4)/2)]
	return int64(location % uint64(d.bloomM))
}

// Add 添加指纹到布隆过滤器
func (d *RedisDupeFilter) Add(fingerprint []byte) error {
	h := d.baseHashes(fingerprint)
	pipe := d.rdb.Pipeline()
	for i := uint(0); i < d.bloomK; i++ {
		pipe.SetBit(context.TODO(), d.key, d.offset(h, i), 1)
	}
	if d.ttl > 0 {
		pipe.Expire(context.TODO(), d.key, d.ttl)
	}
	_, err := pipe.Exec(context.TODO())
	return err
}

// isExists 判断指纹是否存在
func (d *RedisDupeFilter) isExists(fingerprint []byte) (bool, error) {
	h := d.baseHashes(fingerprint)
	pipe := d.rdb.Pipeline()
	result := make([]*redis.IntCmd, 0, d.bloomK)
	for i := uint(0); i < d.bloomK; i++ {
		result = append(result, pipe.GetBit(context.TODO(), d.key, d.offset(h, i)))
	}
	if _, err := pipe.Exec(context.TODO()); err != nil {
		return false, err
	}
	for _, val := range result {
		if val.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}
