package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	signingAlgorithm = "AWS4-HMAC-SHA256"
	amzDateFormat    = "20060102T150405Z"
	amzDayFormat     = "20060102"
	scopeTerminator  = "aws4_request"
)

// EmptyBodySHA256 is the hex SHA-256 of an empty payload.
var EmptyBodySHA256 = hashHex(nil)

// SignerConfig holds the object store credentials used for cold artifact fetches.
type SignerConfig struct {
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Service   string `yaml:"service"`
}

// Header is a single request header. Order is significant for signing.
type Header struct {
	Name  string
	Value string
}

// SignedRequest is a GET request ready to be sent to the object store.
type SignedRequest struct {
	Host    string
	Path    string
	Headers []Header
}

// Get returns the value of the named header, matched case-insensitively.
func (r SignedRequest) Get(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Signer builds time-scoped signed GET requests for the object store.
type Signer struct {
	cfg SignerConfig
}

// NewSigner creates a signer; an empty Service defaults to "s3".
func NewSigner(cfg SignerConfig) *Signer {
	if cfg.Service == "" {
		cfg.Service = "s3"
	}
	return &Signer{cfg: cfg}
}

// Enabled reports whether credentials are configured.
func (s *Signer) Enabled() bool {
	return s != nil && s.cfg.SecretKey != ""
}

// Host is the virtual-hosted object store host of the configured bucket.
func (s *Signer) Host() string {
	return fmt.Sprintf("%s.%s.amazonaws.com", s.cfg.Bucket, s.cfg.Service)
}

// Sign builds the signed request for path at the given instant.
func (s *Signer) Sign(path string, at time.Time) SignedRequest {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	at = at.UTC()
	timestamp := at.Format(amzDateFormat)
	day := at.Format(amzDayFormat)

	headers := []Header{
		{Name: "Host", Value: s.Host()},
		{Name: "X-Amz-Content-Sha256", Value: EmptyBodySHA256},
		{Name: "X-Amz-Date", Value: timestamp},
	}

	canonical, signedHeaders := canonicalRequest(path, headers)
	scope := strings.Join([]string{day, s.cfg.Region, s.cfg.Service, scopeTerminator}, "/")
	stringToSign := signingAlgorithm + "\n" + timestamp + "\n" + scope + "\n" + hashHex([]byte(canonical))

	key := hmacSHA256([]byte("AWS4"+s.cfg.SecretKey), day)
	key = hmacSHA256(key, s.cfg.Region)
	key = hmacSHA256(key, s.cfg.Service)
	key = hmacSHA256(key, scopeTerminator)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	authorization := fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signingAlgorithm, s.cfg.AccessKey, scope, signedHeaders, signature)

	return SignedRequest{
		Host:    s.Host(),
		Path:    path,
		Headers: append(headers, Header{Name: "Authorization", Value: authorization}),
	}
}

func canonicalRequest(path string, headers []Header) (string, string) {
	var b strings.Builder
	names := make([]string, 0, len(headers))
	b.WriteString("GET\n")
	b.WriteString(path)
	b.WriteString("\n\n")
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		names = append(names, name)
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(h.Value)
		b.WriteString("\n")
	}
	signed := strings.Join(names, ";")
	b.WriteString("\n")
	b.WriteString(signed)
	b.WriteString("\n")
	b.WriteString(EmptyBodySHA256)
	return b.String(), signed
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
