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

package metric

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/wetrycode/nephila"
)

var metricLog = nephila.GetLogger("metric")

// MeasurementName 写入influxdb的measurement
const MeasurementName = "nephila"

// InfluxdbConfig influxdb连接参数
type InfluxdbConfig struct {
	ServerURL string
	Token     string
	Bucket    string
	Org       string
	// Interval 推送间隔
	Interval time.Duration
}

// MetricCollector 定时将统计指标推送到influxdb
type MetricCollector struct {
	client   influxdb2.Client
	write    api.WriteAPIBlocking
	stats    nephila.StatisticInterface
	status   *nephila.RuntimeStatus
	interval time.Duration
}

// NewInfluxdb 构建influxdb 客户端
func NewInfluxdb(config *InfluxdbConfig) (influxdb2.Client, api.WriteAPIBlocking) {
	client := influxdb2.NewClientWithOptions(config.ServerURL, config.Token, influxdb2.DefaultOptions().SetMaxRetries(3))
	return client, client.WriteAPIBlocking(config.Org, config.Bucket)
}

// NewMetricCollector 构建采集器,interval小于等于0时使用10秒
func NewMetricCollector(config *InfluxdbConfig, stats nephila.StatisticInterface, status *nephila.RuntimeStatus) *MetricCollector {
	client, write := NewInfluxdb(config)
	interval := config.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &MetricCollector{
		client:   client,
		write:    write,
		stats:    stats,
		status:   status,
		interval: interval,
	}
}

// Collect 将当前所有指标作为一个数据点写入
func (c *MetricCollector) Collect(ctx context.Context) error {
	p := influxdb2.NewPointWithMeasurement(MeasurementName).
		AddTag("server_id", nephila.ServerID).
		SetTime(time.Now())
	for key, value := range c.stats.GetAllStats() {
		p.AddField(key, int64(value))
	}
	if c.status != nil {
		p.AddField("uptime", c.status.GetDuration())
	}
	if len(p.FieldList()) == 0 {
		return nil
	}
	if err := c.write.WritePoint(ctx, p); err != nil {
		metricLog.Errorf("write metric error %s", err.Error())
		return err
	}
	return nil
}

// Start 按照间隔推送指标直到ctx结束,结束前再推送一次
func (c *MetricCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.Collect(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = c.Collect(flushCtx)
			cancel()
			return
		}
	}
}

// Close 关闭influxdb客户端
func (c *MetricCollector) Close() {
	c.client.Close()
}
