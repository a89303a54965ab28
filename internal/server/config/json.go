package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/coursekeeper/internal/flagx"
	"github.com/dmitrijs2005/coursekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration, so both "5s" and integer nanoseconds are accepted. Only
// keys present in the file override the running Config.
type JsonConfig struct {
	EndpointAddrGRPC            string             `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP            *string            `json:"endpoint_addr_http"`
	DatabaseDSN                 string             `json:"database_dsn"`
	SecretKey                   string             `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration    `json:"access_token_validity_duration"`
	SMSProvider                 string             `json:"sms_provider"`
	SMSTimeout                  *timex.Duration    `json:"sms_timeout"`
	Aliyun                      *JsonAliyunConfig  `json:"aliyun"`
	Tencent                     *JsonTencentConfig `json:"tencent"`
	RedisURL                    *string            `json:"redis_url"`
	RequestsPerMinute           *int               `json:"requests_per_minute"`
	TrustProxyHeaders           *bool              `json:"trust_proxy_headers"`
	JanitorSchedule             *string            `json:"janitor_schedule"`
	CORSAllowedOrigins          []string           `json:"cors_allowed_origins"`
	LogLevel                    string             `json:"log_level"`
	LogFormat                   string             `json:"log_format"`
}

type JsonAliyunConfig struct {
	AccessKeyID     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	SignName        string `json:"sign_name"`
	TemplateCode    string `json:"template_code"`
	RegionID        string `json:"region_id"`
	Endpoint        string `json:"endpoint"`
}

type JsonTencentConfig struct {
	SecretID   string `json:"secret_id"`
	SecretKey  string `json:"secret_key"`
	SDKAppID   string `json:"sdk_app_id"`
	SignName   string `json:"sign_name"`
	TemplateID string `json:"template_id"`
	Region     string `json:"region"`
	Endpoint   string `json:"endpoint"`
}

// parseJson overlays values from the file named by -c / -config. Without
// the flag nothing happens. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	overlay(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	if c.EndpointAddrHTTP != nil {
		config.EndpointAddrHTTP = *c.EndpointAddrHTTP
	}
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	overlay(&config.SMSProvider, c.SMSProvider)
	if c.SMSTimeout != nil {
		config.SMSTimeout = c.SMSTimeout.Duration
	}

	if a := c.Aliyun; a != nil {
		overlay(&config.Aliyun.AccessKeyID, a.AccessKeyID)
		overlay(&config.Aliyun.AccessKeySecret, a.AccessKeySecret)
		overlay(&config.Aliyun.SignName, a.SignName)
		overlay(&config.Aliyun.TemplateCode, a.TemplateCode)
		overlay(&config.Aliyun.RegionID, a.RegionID)
		overlay(&config.Aliyun.Endpoint, a.Endpoint)
	}
	if tc := c.Tencent; tc != nil {
		overlay(&config.Tencent.SecretID, tc.SecretID)
		overlay(&config.Tencent.SecretKey, tc.SecretKey)
		overlay(&config.Tencent.SDKAppID, tc.SDKAppID)
		overlay(&config.Tencent.SignName, tc.SignName)
		overlay(&config.Tencent.TemplateID, tc.TemplateID)
		overlay(&config.Tencent.Region, tc.Region)
		overlay(&config.Tencent.Endpoint, tc.Endpoint)
	}

	if c.RedisURL != nil {
		config.RedisURL = *c.RedisURL
	}
	if c.RequestsPerMinute != nil {
		config.RequestsPerMinute = *c.RequestsPerMinute
	}
	if c.TrustProxyHeaders != nil {
		config.TrustProxyHeaders = *c.TrustProxyHeaders
	}
	if c.JanitorSchedule != nil {
		config.JanitorSchedule = *c.JanitorSchedule
	}
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	overlay(&config.LogLevel, c.LogLevel)
	overlay(&config.LogFormat, c.LogFormat)
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
