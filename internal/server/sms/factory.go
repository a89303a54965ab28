package sms

import (
	"context"
	"os"
	"strings"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/config"
)

// NewProvider selects the delivery backend named by cfg.SMSProvider
// (case-insensitive). Anything other than aliyun or tencent yields the
// mock provider, announced with a warning banner.
func NewProvider(cfg *config.Config, logger logging.Logger) Provider {
	ctx := context.Background()
	log := logger.With("module", "sms")

	switch strings.ToLower(strings.TrimSpace(cfg.SMSProvider)) {
	case "aliyun":
		log.Info(ctx, "using Aliyun SMS provider")
		return NewAliyunProvider(cfg.Aliyun, cfg.SMSTimeout, logger)
	case "tencent":
		log.Info(ctx, "using Tencent Cloud SMS provider")
		return NewTencentProvider(cfg.Tencent, cfg.SMSTimeout, logger)
	default:
		log.Info(ctx, "using mock SMS provider (development mode)", "configured", cfg.SMSProvider)
		log.Warn(ctx, "==============================================")
		log.Warn(ctx, "WARNING: SMS is in MOCK mode!")
		log.Warn(ctx, "Verification codes will only be printed to console.")
		log.Warn(ctx, "For production, set SMS_PROVIDER=aliyun or SMS_PROVIDER=tencent")
		log.Warn(ctx, "==============================================")
		return NewMockProvider(os.Stdout, logger)
	}
}
