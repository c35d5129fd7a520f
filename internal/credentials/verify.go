package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	asr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/asr/v20190614"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"

	"github.com/kayz/teachcut/internal/security"
)

// Outcome classifies one verification attempt.
type Outcome int

const (
	Verified Outcome = iota
	// Rejected means the provider answered and refused the credential.
	Rejected
	// NetworkError means no verdict was reached: timeout, refused
	// connection, DNS failure.
	NetworkError
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Rejected:
		return "rejected"
	case NetworkError:
		return "network error"
	default:
		return "unknown"
	}
}

// Verifier performs exactly one remote check of a credential. The error
// carries detail for logs; the Outcome is the verdict.
type Verifier interface {
	Verify(ctx context.Context, fields map[string]string) (Outcome, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, fields map[string]string) (Outcome, error)

func (f VerifierFunc) Verify(ctx context.Context, fields map[string]string) (Outcome, error) {
	return f(ctx, fields)
}

// SpeechVerifier lists models with the key: a 2xx answer proves the key.
type SpeechVerifier struct {
	// BaseURL overrides the API root, e.g. "https://api.openai.com/v1".
	BaseURL    string
	HTTPClient *http.Client
}

func (v *SpeechVerifier) Verify(ctx context.Context, fields map[string]string) (Outcome, error) {
	cfg := openai.DefaultConfig(fields[FieldAPIKey])
	if v.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(v.BaseURL, "/")
	}
	if v.HTTPClient != nil {
		cfg.HTTPClient = v.HTTPClient
	}
	if err := security.ValidateCredentialURL(cfg.BaseURL); err != nil {
		return Rejected, err
	}
	client := openai.NewClientWithConfig(cfg)

	_, err := client.ListModels(ctx)
	if err == nil {
		return Verified, nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return Rejected, fmt.Errorf("status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return Rejected, fmt.Errorf("status %d", reqErr.HTTPStatusCode)
	}
	return NetworkError, err
}

// CloudVerifier checks the secret pair's shape and builds an ASR client
// with it. Client construction does not reach the network, so a structurally
// valid pair with the wrong secret still passes here.
type CloudVerifier struct {
	Region string
	// TimeoutSeconds is applied to the SDK's HTTP profile.
	TimeoutSeconds int
}

func (v *CloudVerifier) Verify(ctx context.Context, fields map[string]string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return NetworkError, err
	}
	id, key := fields[FieldSecretID], fields[FieldSecretKey]
	if err := checkCloudPair(id, key); err != nil {
		return Rejected, err
	}

	region := v.Region
	if region == "" {
		region = "ap-beijing"
	}
	cpf := profile.NewClientProfile()
	if v.TimeoutSeconds > 0 {
		cpf.HttpProfile.ReqTimeout = v.TimeoutSeconds
	}
	if _, err := asr.NewClient(common.NewCredential(id, key), region, cpf); err != nil {
		return Rejected, fmt.Errorf("build asr client: %w", err)
	}
	return Verified, nil
}

func checkCloudPair(id, key string) error {
	if id == "" || key == "" {
		return errors.New("secret id and secret key are required")
	}
	if !strings.HasPrefix(id, cloudIDPrefix) {
		return fmt.Errorf("secret id must start with %q", cloudIDPrefix)
	}
	if strings.IndexFunc(id+key, unicode.IsSpace) >= 0 {
		return errors.New("secret id and key must not contain whitespace")
	}
	return nil
}
