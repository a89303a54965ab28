package sms

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/config"
	"github.com/go-resty/resty/v2"
)

const (
	tencentAction      = "SendSms"
	tencentAPIVersion  = "2021-01-11"
	tencentService     = "sms"
	tencentAlgorithm   = "TC3-HMAC-SHA256"
	tencentContentType = "application/json; charset=utf-8"
	tencentSuccess     = "Ok"

	// Second template parameter: validity in minutes.
	tencentValidityMinutes = "5"
)

type tencentRequest struct {
	PhoneNumberSet   []string `json:"PhoneNumberSet"`
	SmsSdkAppID      string   `json:"SmsSdkAppId"`
	SignName         string   `json:"SignName"`
	TemplateID       string   `json:"TemplateId"`
	TemplateParamSet []string `json:"TemplateParamSet"`
}

type tencentSendStatus struct {
	SerialNo    string `json:"SerialNo"`
	PhoneNumber string `json:"PhoneNumber"`
	Code        string `json:"Code"`
	Message     string `json:"Message"`
}

type tencentResponse struct {
	Response struct {
		SendStatusSet []tencentSendStatus `json:"SendStatusSet"`
		Error         *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
		RequestID string `json:"RequestId"`
	} `json:"Response"`
}

// TencentProvider calls the Tencent Cloud SMS SendSms API with a
// TC3-HMAC-SHA256 signed POST.
type TencentProvider struct {
	cfg    config.TencentConfig
	client *resty.Client
	logger logging.Logger

	now func() time.Time
}

func NewTencentProvider(cfg config.TencentConfig, timeout time.Duration, logger logging.Logger) *TencentProvider {
	return &TencentProvider{
		cfg:    cfg,
		client: resty.New().SetTimeout(timeout),
		logger: logger.With("module", "sms", "provider", "tencent"),
		now:    time.Now,
	}
}

func (p *TencentProvider) Name() string {
	return "Tencent Cloud"
}

func (p *TencentProvider) SendVerificationCode(ctx context.Context, phone, code string) bool {
	payload, err := json.Marshal(tencentRequest{
		PhoneNumberSet:   []string{"+86" + phone},
		SmsSdkAppID:      p.cfg.SDKAppID,
		SignName:         p.cfg.SignName,
		TemplateID:       p.cfg.TemplateID,
		TemplateParamSet: []string{code, tencentValidityMinutes},
	})
	if err != nil {
		p.logger.Error(ctx, "failed to build request", "phone", maskPhone(phone), "error", err)
		return false
	}

	u, err := url.Parse(p.cfg.Endpoint)
	if err != nil {
		p.logger.Error(ctx, "bad endpoint", "endpoint", p.cfg.Endpoint, "error", err)
		return false
	}

	ts := p.now().Unix()

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", tencentContentType).
		SetHeader("Authorization", p.authorization(u.Host, payload, ts)).
		SetHeader("X-TC-Action", tencentAction).
		SetHeader("X-TC-Timestamp", strconv.FormatInt(ts, 10)).
		SetHeader("X-TC-Version", tencentAPIVersion).
		SetHeader("X-TC-Region", p.cfg.Region).
		SetBody(payload).
		Post(p.cfg.Endpoint)
	if err != nil {
		p.logger.Error(ctx, "error sending sms", "phone", maskPhone(phone), "error", transportError(err))
		return false
	}

	var body tencentResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		p.logger.Error(ctx, "unexpected gateway response", "phone", maskPhone(phone), "status", resp.StatusCode(), "error", err)
		return false
	}

	if resp.StatusCode() != http.StatusOK {
		p.logger.Error(ctx, "failed to send sms", "phone", maskPhone(phone), "status", resp.StatusCode())
		return false
	}

	if e := body.Response.Error; e != nil {
		p.logger.Error(ctx, "failed to send sms", "phone", maskPhone(phone),
			"code", e.Code, "message", e.Message, "request_id", body.Response.RequestID)
		return false
	}

	if len(body.Response.SendStatusSet) == 0 {
		p.logger.Error(ctx, "empty send status set", "phone", maskPhone(phone), "request_id", body.Response.RequestID)
		return false
	}

	status := body.Response.SendStatusSet[0]
	if status.Code != tencentSuccess {
		p.logger.Error(ctx, "failed to send sms", "phone", maskPhone(phone),
			"code", status.Code, "message", status.Message, "request_id", body.Response.RequestID)
		return false
	}

	p.logger.Info(ctx, "sms sent", "phone", maskPhone(phone), "serial_no", status.SerialNo)
	return true
}

// authorization builds the TC3-HMAC-SHA256 Authorization header value.
func (p *TencentProvider) authorization(host string, payload []byte, ts int64) string {
	date := time.Unix(ts, 0).UTC().Format("2006-01-02")
	scope := date + "/" + tencentService + "/tc3_request"

	canonicalHeaders := "content-type:" + tencentContentType + "\nhost:" + host + "\n"
	signedHeaders := "content-type;host"
	canonicalRequest := fmt.Sprintf("%s\n%s\n%s\n%s\n%s\n%s",
		http.MethodPost, "/", "", canonicalHeaders, signedHeaders, sha256hex(payload))

	stringToSign := fmt.Sprintf("%s\n%d\n%s\n%s",
		tencentAlgorithm, ts, scope, sha256hex([]byte(canonicalRequest)))

	secretDate := hmacSHA256([]byte("TC3"+p.cfg.SecretKey), date)
	secretService := hmacSHA256(secretDate, tencentService)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		tencentAlgorithm, p.cfg.SecretID, scope, signedHeaders, signature)
}

func sha256hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
