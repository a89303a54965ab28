package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/flagx"
	"github.com/joho/godotenv"
)

// parseEnv loads a dotenv file (the -env flag, else ./.env) without
// overriding variables already present in the process environment, then
// copies every recognised variable into config. Unset variables leave the
// current value alone. A missing default .env is fine; a missing explicit
// one, or a malformed value, panics.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlag(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	setString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.SecretKey, "JWT_SECRET")
	setDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")

	setString(&config.SMSProvider, "SMS_PROVIDER")
	setDuration(&config.SMSTimeout, "SMS_TIMEOUT")

	setString(&config.Aliyun.AccessKeyID, "ALIYUN_ACCESS_KEY_ID")
	setString(&config.Aliyun.AccessKeySecret, "ALIYUN_ACCESS_KEY_SECRET")
	setString(&config.Aliyun.SignName, "ALIYUN_SIGN_NAME")
	setString(&config.Aliyun.TemplateCode, "ALIYUN_TEMPLATE_CODE")
	setString(&config.Aliyun.RegionID, "ALIYUN_REGION_ID")
	setString(&config.Aliyun.Endpoint, "ALIYUN_ENDPOINT")

	setString(&config.Tencent.SecretID, "TENCENT_SECRET_ID")
	setString(&config.Tencent.SecretKey, "TENCENT_SECRET_KEY")
	setString(&config.Tencent.SDKAppID, "TENCENT_SDK_APP_ID")
	setString(&config.Tencent.SignName, "TENCENT_SIGN_NAME")
	setString(&config.Tencent.TemplateID, "TENCENT_TEMPLATE_ID")
	setString(&config.Tencent.Region, "TENCENT_REGION")
	setString(&config.Tencent.Endpoint, "TENCENT_ENDPOINT")

	setString(&config.RedisURL, "REDIS_URL")
	setInt(&config.RequestsPerMinute, "RATE_LIMIT_PER_MINUTE")
	setBool(&config.TrustProxyHeaders, "TRUST_PROXY_HEADERS")
	setString(&config.JanitorSchedule, "JANITOR_SCHEDULE")
	if v, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		config.CORSAllowedOrigins = parseCSV(v)
	}
	setString(&config.LogLevel, "LOG_LEVEL")
	setString(&config.LogFormat, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = d
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = n
}

func setBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		panic(err)
	}
	*dst = b
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
