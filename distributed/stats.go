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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wetrycode/nephila"
)

var logger = nephila.GetLogger("distributed")

// RedisConfig redis 连接参数
type RedisConfig struct {
	// RedisAddr redis 地址
	RedisAddr string
	// RedisPasswd redis 密码
	RedisPasswd string
	// RedisUsername redis 用户名
	RedisUsername string
	// RedisDB 数据库编号
	RedisDB uint32
	// ReadTimeout 读超时
	ReadTimeout time.Duration
	// WriteTimeout 写超时
	WriteTimeout time.Duration
}

// NewRedisConfig redis配置构造函数
func NewRedisConfig(addr string, username string, passwd string, db uint32) *RedisConfig {
	return &RedisConfig{
		RedisAddr:     addr,
		RedisUsername: username,
		RedisPasswd:   passwd,
		RedisDB:       db,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// NewRdbClient 创建redis客户端并检查连通性
func NewRdbClient(config *RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisAddr,
		Username:     config.RedisUsername,
		Password:     config.RedisPasswd,
		DB:           int(config.RedisDB),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s error %w", config.RedisAddr, err)
	}
	return rdb, nil
}

// RedisStatistic 基于redis hash的统计组件,多个服务实例共享同一组计数
type RedisStatistic struct {
	rdb     redis.Cmdable
	key     string
	timeout time.Duration
}

// NewRedisStatistic key为保存计数的hash
func NewRedisStatistic(rdb redis.Cmdable, key string) *RedisStatistic {
	return &RedisStatistic{
		rdb:     rdb,
		key:     key,
		timeout: 3 * time.Second,
	}
}

// Incr 实现nephila.StatisticInterface
func (s *RedisStatistic) Incr(metric string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.rdb.HIncrBy(ctx, s.key, metric, 1).Err(); err != nil {
		logger.Errorf("incr %s error %s", metric, err.Error())
	}
}

// Get 实现nephila.StatisticInterface
func (s *RedisStatistic) Get(metric string) uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	val, err := s.rdb.HGet(ctx, s.key, metric).Uint64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Errorf("get %s error %s", metric, err.Error())
		}
		return 0
	}
	return val
}

// GetAllStats 实现nephila.StatisticInterface
func (s *RedisStatistic) GetAllStats() map[string]uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	result := make(map[string]uint64)
	values, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		logger.Errorf("get all stats error %s", err.Error())
		return result
	}
	for k, v := range values {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			continue
		}
		result[k] = n
	}
	return result
}
