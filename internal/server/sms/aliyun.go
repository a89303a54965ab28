package sms

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	aliyunAPIVersion = "2017-05-25"
	aliyunSuccess    = "OK"
)

type aliyunResponse struct {
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	BizID     string `json:"BizId"`
	RequestID string `json:"RequestId"`
}

// AliyunProvider calls the Dysms SendSms RPC API with a signed GET request.
type AliyunProvider struct {
	cfg    config.AliyunConfig
	client *resty.Client
	logger logging.Logger

	now   func() time.Time
	nonce func() string
}

func NewAliyunProvider(cfg config.AliyunConfig, timeout time.Duration, logger logging.Logger) *AliyunProvider {
	return &AliyunProvider{
		cfg:    cfg,
		client: resty.New().SetTimeout(timeout),
		logger: logger.With("module", "sms", "provider", "aliyun"),
		now:    time.Now,
		nonce:  uuid.NewString,
	}
}

func (p *AliyunProvider) Name() string {
	return "Aliyun"
}

func (p *AliyunProvider) SendVerificationCode(ctx context.Context, phone, code string) bool {
	params, err := p.requestParams(phone, code)
	if err != nil {
		p.logger.Error(ctx, "failed to build request", "phone", maskPhone(phone), "error", err)
		return false
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryString(params).
		Get(p.cfg.Endpoint + "/")
	if err != nil {
		p.logger.Error(ctx, "error sending sms", "phone", maskPhone(phone), "error", transportError(err))
		return false
	}

	var body aliyunResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		p.logger.Error(ctx, "unexpected gateway response", "phone", maskPhone(phone), "status", resp.StatusCode(), "error", err)
		return false
	}

	if resp.StatusCode() != http.StatusOK || body.Code != aliyunSuccess {
		p.logger.Error(ctx, "failed to send sms", "phone", maskPhone(phone), "status", resp.StatusCode(),
			"code", body.Code, "message", body.Message, "request_id", body.RequestID)
		return false
	}

	p.logger.Info(ctx, "sms sent", "phone", maskPhone(phone), "biz_id", body.BizID)
	return true
}

// requestParams returns the complete, signed query string.
func (p *AliyunProvider) requestParams(phone, code string) (string, error) {
	templateParam, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return "", err
	}

	params := map[string]string{
		"AccessKeyId":      p.cfg.AccessKeyID,
		"Action":           "SendSms",
		"Format":           "JSON",
		"PhoneNumbers":     phone,
		"RegionId":         p.cfg.RegionID,
		"SignName":         p.cfg.SignName,
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureNonce":   p.nonce(),
		"SignatureVersion": "1.0",
		"TemplateCode":     p.cfg.TemplateCode,
		"TemplateParam":    string(templateParam),
		"Timestamp":        p.now().UTC().Format("2006-01-02T15:04:05Z"),
		"Version":          aliyunAPIVersion,
	}

	query := canonicalQuery(params)
	signature := aliyunSignature(p.cfg.AccessKeySecret, http.MethodGet, query)

	return "Signature=" + percentEncode(signature) + "&" + query, nil
}

// canonicalQuery sorts params by key and percent-encodes keys and values.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+"="+percentEncode(params[k]))
	}
	return strings.Join(parts, "&")
}

func aliyunSignature(secret, method, canonical string) string {
	stringToSign := method + "&" + percentEncode("/") + "&" + percentEncode(canonical)

	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode is RFC 3986 encoding as the RPC signature requires it.
func percentEncode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	e = strings.ReplaceAll(e, "*", "%2A")
	e = strings.ReplaceAll(e, "%7E", "~")
	return e
}
