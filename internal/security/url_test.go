package security

import "testing"

func TestValidateCredentialURLBlocksPlainRemote(t *testing.T) {
	tests := []string{
		"",
		"http://api.openai.com/v1",
		"http://10.0.0.5/v1",
		"ftp://api.openai.com",
		"file:///etc/passwd",
		"https://",
	}

	for _, rawURL := range tests {
		if err := ValidateCredentialURL(rawURL); err == nil {
			t.Fatalf("expected %q to be rejected", rawURL)
		}
	}
}

func TestValidateCredentialURLAllowsHTTPSAndLoopback(t *testing.T) {
	tests := []string{
		"https://api.openai.com/v1",
		"http://127.0.0.1:54321/v1",
		"http://localhost:8000",
		"http://[::1]:9000",
	}

	for _, rawURL := range tests {
		if err := ValidateCredentialURL(rawURL); err != nil {
			t.Fatalf("expected %q to pass, got %v", rawURL, err)
		}
	}
}
