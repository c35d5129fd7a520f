package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/envfile"
	"github.com/kayz/teachcut/internal/logger"
)

// Provisioner walks the user through entering, verifying and saving
// credentials. Every prompt goes through Console.
type Provisioner struct {
	Store       *envfile.Store
	Console     console.Console
	Speech      Verifier
	Cloud       Verifier
	Timeout     time.Duration
	MaxAttempts int
}

// New builds a provisioner that verifies against the configured speech
// endpoint and cloud region.
func New(cfg *config.Config, store *envfile.Store, c console.Console) *Provisioner {
	return &Provisioner{
		Store:   store,
		Console: c,
		Speech: &SpeechVerifier{
			BaseURL:    cfg.Credentials.SpeechBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.VerifyTimeout()},
		},
		Cloud: &CloudVerifier{
			Region:         cfg.Credentials.CloudRegion,
			TimeoutSeconds: cfg.Credentials.VerifyTimeoutSeconds,
		},
		Timeout:     cfg.VerifyTimeout(),
		MaxAttempts: cfg.Credentials.MaxAttempts,
	}
}

type serviceInfo struct {
	title   string
	purpose string
	url     string
	lost    string
}

var services = map[Service]serviceInfo{
	SpeechProvider: {
		title:   "OpenAI API key",
		purpose: "Used for speech-to-text",
		url:     "https://platform.openai.com/api-keys",
		lost:    "speech-to-text will be unavailable",
	},
	CloudProvider: {
		title:   "Tencent Cloud API keys",
		purpose: "Used for video background removal and speech recognition",
		url:     "https://console.cloud.tencent.com/cam/capi",
		lost:    "video background removal will be unavailable",
	},
}

// Provision obtains one verified credential and saves it. It returns
// ErrSkipped when the user declines to retry, runs out of attempts, or
// input ends.
func (p *Provisioner) Provision(ctx context.Context, svc Service) (Credential, error) {
	info := services[svc]
	p.Console.Println()
	p.Console.Println(rule)
	p.Console.Printf("Configure %s\n", info.title)
	p.Console.Println(rule)
	p.Console.Println(info.purpose)
	p.Console.Printf("Get one at: %s\n\n", info.url)

	cred, kept, err := p.offerExisting(ctx, svc)
	if err != nil {
		return Credential{}, inputErr(err)
	}
	if kept {
		if err := p.Persist(cred); err != nil {
			return Credential{}, err
		}
		logger.Info("[Credentials] kept existing %s credential %s", svc, cred.Masked())
		return cred, nil
	}

	failures := 0
	for {
		fields, err := p.acquire(ctx, svc)
		if err != nil {
			return Credential{}, inputErr(err)
		}
		cred := Credential{Service: svc, Fields: fields}

		p.Console.Printf("Verifying %s ...\n", info.title)
		outcome, detail := p.verify(ctx, svc, fields)
		if err := ctx.Err(); err != nil {
			return Credential{}, err
		}
		if outcome == Verified {
			cred.Verified = true
			if err := p.Persist(cred); err != nil {
				return Credential{}, err
			}
			console.Pass(p.Console, "%s verified", info.title)
			logger.Info("[Credentials] %s credential %s verified", svc, cred.Masked())
			return cred, nil
		}

		// Rejected and NetworkError look the same to the user; logs keep
		// them apart.
		logger.Warn("[Credentials] %s credential %s %s: %v", svc, cred.Masked(), outcome, detail)
		console.Fail(p.Console, "%s verification failed", info.title)

		failures++
		if p.MaxAttempts > 0 && failures >= p.MaxAttempts {
			console.Warn(p.Console, "Giving up after %d failed attempts", failures)
			return Credential{}, ErrSkipped
		}
		again, err := console.Confirm(ctx, p.Console, "Try again?", true)
		if err != nil {
			return Credential{}, inputErr(err)
		}
		if !again {
			return Credential{}, ErrSkipped
		}
	}
}

func (p *Provisioner) offerExisting(ctx context.Context, svc Service) (Credential, bool, error) {
	var cred Credential
	switch svc {
	case SpeechProvider:
		key := p.Store.Value(KeyOpenAI)
		if envfile.IsPlaceholder(key) {
			return cred, false, nil
		}
		cred = Credential{Service: svc, Fields: map[string]string{FieldAPIKey: key}}
		p.Console.Printf("Current key: %s\n", cred.Masked())
	case CloudProvider:
		id, key := p.Store.Value(KeySecretID), p.Store.Value(KeySecretKey)
		if envfile.IsPlaceholder(id) || envfile.IsPlaceholder(key) {
			return cred, false, nil
		}
		cred = Credential{Service: svc, Fields: map[string]string{FieldSecretID: id, FieldSecretKey: key}}
		p.Console.Printf("Current Secret ID: %s\n", cred.Masked())
	default:
		return cred, false, fmt.Errorf("unknown service %v", svc)
	}
	keep, err := console.Confirm(ctx, p.Console, "Keep the current configuration?", true)
	if err != nil || !keep {
		return Credential{}, false, err
	}
	cred.Verified = true
	cred.Kept = true
	return cred, true, nil
}

// acquire reads well-formed input. Malformed values are re-prompted and
// do not count as failed attempts.
func (p *Provisioner) acquire(ctx context.Context, svc Service) (map[string]string, error) {
	switch svc {
	case SpeechProvider:
		for {
			key, err := console.Required(ctx, p.Console, "OpenAI API key (sk-...)", true)
			if err != nil {
				return nil, err
			}
			if !ValidSpeechKey(key) {
				console.Fail(p.Console, "The OpenAI API key should start with 'sk-'")
				continue
			}
			return map[string]string{FieldAPIKey: key}, nil
		}
	case CloudProvider:
		id, err := console.Required(ctx, p.Console, "Tencent Cloud Secret ID", false)
		if err != nil {
			return nil, err
		}
		key, err := console.Required(ctx, p.Console, "Tencent Cloud Secret Key", true)
		if err != nil {
			return nil, err
		}
		return map[string]string{FieldSecretID: id, FieldSecretKey: key}, nil
	}
	return nil, fmt.Errorf("unknown service %v", svc)
}

func (p *Provisioner) verify(ctx context.Context, svc Service, fields map[string]string) (Outcome, error) {
	v := p.Speech
	if svc == CloudProvider {
		v = p.Cloud
	}
	if v == nil {
		return NetworkError, errors.New("no verifier configured")
	}
	vctx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	outcome, err := v.Verify(vctx, fields)
	if outcome == Verified && err != nil {
		outcome = NetworkError
	}
	if outcome == Verified && vctx.Err() != nil {
		// Answers that arrive after the deadline do not count.
		return NetworkError, vctx.Err()
	}
	return outcome, err
}

// Persist writes every alias of cred in one store write.
func (p *Provisioner) Persist(cred Credential) error {
	if err := p.Store.SetAll(cred.Entries()); err != nil {
		return fmt.Errorf("save %s credential: %w", cred.Service, err)
	}
	return nil
}

var (
	SpeechServices = []console.Option{
		{Value: "openai", Label: "OpenAI Whisper (recommended, most accurate)"},
		{Value: "xunfei", Label: "iFlytek ASR (fastest)"},
		{Value: "tencent", Label: "Tencent Cloud ASR"},
	}
	VideoServices = []console.Option{
		{Value: "tencent", Label: "Tencent Cloud (recommended)"},
		{Value: "local", Label: "Local processing"},
	}
)

// ValidSetting reports whether value is one of options.
func ValidSetting(options []console.Option, value string) bool {
	return indexOf(options, value) >= 0
}

func indexOf(options []console.Option, value string) int {
	for i, o := range options {
		if o.Value == value {
			return i
		}
	}
	return -1
}

// ConfigureSettings asks for the service selectors and saves them. The
// current stored choice is the default; unknown input falls back to it.
func (p *Provisioner) ConfigureSettings(ctx context.Context) ([]envfile.Entry, error) {
	p.Console.Println()
	p.Console.Println(rule)
	p.Console.Println("Optional settings")
	p.Console.Println(rule)

	speech, err := console.Choose(ctx, p.Console, "Speech recognition service:", SpeechServices,
		max(indexOf(SpeechServices, p.Store.Value(KeySpeechService)), 0))
	if err != nil {
		return nil, err
	}
	video, err := console.Choose(ctx, p.Console, "Video background removal service:", VideoServices,
		max(indexOf(VideoServices, p.Store.Value(KeyVideoService)), 0))
	if err != nil {
		return nil, err
	}

	entries := []envfile.Entry{
		{Key: KeySpeechService, Value: speech},
		{Key: KeyVideoService, Value: video},
	}
	if err := p.Store.SetAll(entries); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return entries, nil
}

// Summary is what a configure run ended with. Nil credentials were skipped.
type Summary struct {
	Speech   *Credential
	Cloud    *Credential
	Settings []envfile.Entry
}

// Run is the full configure wizard.
func (p *Provisioner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := p.Store.Reload(); err != nil {
		return sum, err
	}
	p.Console.Println("Starting credential setup. Press Ctrl+C to quit at any time.")

	for _, svc := range []Service{SpeechProvider, CloudProvider} {
		cred, err := p.Provision(ctx, svc)
		switch {
		case errors.Is(err, ErrSkipped):
			console.Warn(p.Console, "Skipping %s, %s", services[svc].title, services[svc].lost)
		case err != nil:
			return sum, err
		case svc == SpeechProvider:
			sum.Speech = &cred
		default:
			sum.Cloud = &cred
		}
	}

	settings, err := p.ConfigureSettings(ctx)
	if err != nil {
		if !errors.Is(err, console.ErrInputClosed) {
			return sum, err
		}
		console.Warn(p.Console, "Optional settings left unchanged")
	}
	sum.Settings = settings

	p.Console.Println()
	console.Pass(p.Console, "Configuration saved to %s", filepath.Base(p.Store.Path()))
	p.Console.Println(rule)
	p.Console.Println("Setup complete. Start the system with:")
	p.Console.Println("  teachcut deploy")
	p.Console.Println("or:")
	p.Console.Println("  teachcut start")
	p.Console.Println(rule)
	return sum, nil
}

func inputErr(err error) error {
	if errors.Is(err, console.ErrInputClosed) {
		return ErrSkipped
	}
	return err
}

const rule = "============================================================"
