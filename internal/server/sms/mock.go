package sms

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
)

const bannerWidth = 60

// MockProvider never leaves the process: it prints the code in a console
// banner, logs it, and keeps the last code per phone so tests and local
// tooling can read it back.
type MockProvider struct {
	out    io.Writer
	logger logging.Logger

	mu     sync.RWMutex
	outbox map[string]string
}

// NewMockProvider builds a MockProvider printing its banner to out. A nil
// out means os.Stdout.
func NewMockProvider(out io.Writer, logger logging.Logger) *MockProvider {
	if out == nil {
		out = os.Stdout
	}
	return &MockProvider{
		out:    out,
		logger: logger.With("module", "sms", "provider", "mock"),
		outbox: make(map[string]string),
	}
}

func (p *MockProvider) Name() string {
	return "Mock (Development)"
}

func (p *MockProvider) SendVerificationCode(ctx context.Context, phone, code string) bool {
	p.mu.Lock()
	p.outbox[phone] = code
	p.mu.Unlock()

	p.printBanner(phone, code)
	p.logger.Info(ctx, "[MOCK SMS] code sent", "phone", phone, "code", code)
	return true
}

// LastCode returns the most recent code "sent" to phone.
func (p *MockProvider) LastCode(phone string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	code, ok := p.outbox[phone]
	return code, ok
}

func (p *MockProvider) printBanner(phone, code string) {
	var b strings.Builder
	rule := strings.Repeat("═", bannerWidth)

	b.WriteString("\n╔" + rule + "╗\n")
	b.WriteString(bannerLine("SMS VERIFICATION CODE (mock delivery)"))
	b.WriteString("╠" + rule + "╣\n")
	b.WriteString(bannerLine("Phone:    " + phone))
	b.WriteString(bannerLine("Code:     " + code))
	b.WriteString(bannerLine("Expires:  in 5 minutes"))
	b.WriteString("╠" + rule + "╣\n")
	b.WriteString(bannerLine("Mock mode: nothing was sent to a real phone."))
	b.WriteString(bannerLine("Set SMS_PROVIDER=aliyun or tencent for delivery."))
	b.WriteString("╚" + rule + "╝\n\n")

	_, _ = fmt.Fprint(p.out, b.String())
}

func bannerLine(s string) string {
	text := "  " + s
	if pad := bannerWidth - len([]rune(text)); pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	return "║" + text + "║\n"
}
