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
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Settings 配置读取接口
type Settings interface {
	// GetValue 获取指定的参数值
	GetValue(key string) (interface{}, error)
}

// Configuration 全局配置,从settings.yaml、环境变量和默认值中读取
type Configuration struct {
	*viper.Viper
}

// ServerConfig 服务端运行参数
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
	MaxConnections int           `mapstructure:"max_connections"`
	AcceptRate     int           `mapstructure:"accept_rate"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReusePort      bool          `mapstructure:"reuse_port"`
}

var onceConfig sync.Once

// Config 全局配置实例
var Config *Configuration = nil

func newNephilaConfig() {
	onceConfig.Do(func() {
		Config = NewConfiguration()
	})
}

// NewConfiguration 构造一个带有默认值和环境变量绑定的配置
func NewConfiguration() *Configuration {
	c := &Configuration{viper.New()}
	c.setDefaults()
	return c
}

func (c *Configuration) setDefaults() {
	c.SetDefault("server.host", DefaultHost)
	c.SetDefault("server.port", DefaultPort)
	c.SetDefault("server.read_buffer_size", DefaultReadBufferSize)
	c.SetDefault("server.max_connections", 0)
	c.SetDefault("server.accept_rate", 0)
	c.SetDefault("server.read_timeout", "5s")
	c.SetDefault("server.write_timeout", "5s")
	c.SetDefault("server.reuse_port", true)
	c.SetDefault("server.shutdown_timeout", "5s")
	c.SetDefault("files.directory", "")
	c.SetDefault("log.level", "info")
	c.SetDefault("encoding.gzip_level", -1)
	c.SetDefault("api.addr", "")
	c.SetDefault("stats.redis.addr", "")
	c.SetDefault("stats.redis.key", "nephila:v1:stats")
	c.SetDefault("metric.influxdb.url", "")
	c.SetDefault("metric.influxdb.interval", "10s")

	c.SetEnvPrefix("NEPHILA")
	c.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.AutomaticEnv()
	// HOST和PORT不带前缀
	_ = c.BindEnv("server.host", "HOST", "NEPHILA_SERVER_HOST")
	_ = c.BindEnv("server.port", "PORT", "NEPHILA_SERVER_PORT")
}

// GetValue 实现Settings
func (c *Configuration) GetValue(key string) (interface{}, error) {
	value := c.Get(key)
	return value, nil
}

func (c *Configuration) load(dir string) bool {
	c.AddConfigPath(dir)
	c.SetConfigName("settings")
	c.SetConfigType("yaml")
	readErr := c.ReadInConfig()
	return readErr == nil
}

// LoadFile 读取指定的配置文件
func (c *Configuration) LoadFile(file string) error {
	c.SetConfigFile(file)
	return c.ReadInConfig()
}

// ServerSettings 将server段解码为ServerConfig
func (c *Configuration) ServerSettings() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	raw := map[string]interface{}{}
	for _, key := range []string{"host", "port", "read_buffer_size", "max_connections", "accept_rate", "read_timeout", "write_timeout", "reuse_port"} {
		raw[key] = c.Get("server." + key)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		// 环境变量中的数值都是字符串
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	return cfg, nil
}

func initSettings() {
	newNephilaConfig()
	wd, _ := os.Getwd()
	Config.load(wd)
}
