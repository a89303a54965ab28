package sms

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "138****1111", maskPhone("13800001111"))
	assert.Equal(t, "*****", maskPhone("12345"))
	assert.Equal(t, "", maskPhone(""))
}

func TestMockProvider_SendVerificationCode(t *testing.T) {
	var banner, logs bytes.Buffer
	p := NewMockProvider(&banner, logging.New(&logs, "json", "info"))

	ok := p.SendVerificationCode(context.Background(), "13800001111", "042917")
	require.True(t, ok)

	assert.Equal(t, "Mock (Development)", p.Name())
	assert.Contains(t, banner.String(), "13800001111")
	assert.Contains(t, banner.String(), "042917")
	assert.Contains(t, logs.String(), "042917", "the mock provider is the one place a code is logged")

	code, found := p.LastCode("13800001111")
	require.True(t, found)
	assert.Equal(t, "042917", code)

	p.SendVerificationCode(context.Background(), "13800001111", "100200")
	code, _ = p.LastCode("13800001111")
	assert.Equal(t, "100200", code, "latest send replaces the outbox entry")

	_, found = p.LastCode("13900002222")
	assert.False(t, found)
}

func TestBannerLine_FixedWidth(t *testing.T) {
	line := bannerLine("Code:     123456")
	assert.Equal(t, bannerWidth+3, len([]rune(line)), "two borders, padded body and a newline")
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     any
	}{
		{name: "mock", provider: "mock", want: &MockProvider{}},
		{name: "aliyun", provider: "aliyun", want: &AliyunProvider{}},
		{name: "tencent upper case", provider: "TENCENT", want: &TencentProvider{}},
		{name: "unknown falls back to mock", provider: "carrier-pigeon", want: &MockProvider{}},
		{name: "empty falls back to mock", provider: "", want: &MockProvider{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.LoadDefaults()
			cfg.SMSProvider = tt.provider

			got := NewProvider(cfg, logging.Discard())
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestNewProvider_MockWarns(t *testing.T) {
	var logs bytes.Buffer
	cfg := &config.Config{SMSProvider: "unknown"}

	NewProvider(cfg, logging.New(&logs, "text", "info"))

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "MOCK mode")
}

func TestTransportError(t *testing.T) {
	inner := errors.New("context deadline exceeded")
	err := &url.Error{Op: "Get", URL: "https://gw/?TemplateParam=%7B%22code%22%3A%22123456%22%7D", Err: inner}

	assert.Equal(t, inner, transportError(err))
	assert.Equal(t, inner, transportError(inner))
}
