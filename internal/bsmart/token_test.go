package bsmart

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testSigningKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	return key, pemKey
}

func TestBuildToken(t *testing.T) {
	key, pemKey := testSigningKey(t)

	signed, err := BuildToken(pemKey, 777, "secret-password")
	if err != nil {
		t.Fatalf("BuildToken: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Method)
		}
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("parse signed token: %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["document_id"] != "bsmart-P-S-777" {
		t.Errorf("document_id = %v, want bsmart-P-S-777", claims["document_id"])
	}
	if claims["password"] != "secret-password" {
		t.Errorf("password claim = %v", claims["password"])
	}
	perms, ok := claims["permissions"].([]any)
	if !ok || len(perms) != 2 || perms[0] != "read-document" || perms[1] != "write" {
		t.Errorf("permissions = %v", claims["permissions"])
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("exp claim: %v", err)
	}
	until := time.Until(exp.Time)
	if until < 23*time.Hour || until > 25*time.Hour {
		t.Errorf("token expires in %v, want ~24h", until)
	}
}

func TestBuildTokenBadKey(t *testing.T) {
	_, err := BuildToken("not a pem key", 777, "pw")
	if !errors.Is(err, ErrSigningFailed) {
		t.Errorf("expected ErrSigningFailed, got %v", err)
	}
}

func TestExchangeImageAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/i/d/bsmart-P-S-777/auth" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("PSPDFKit-Platform") != "web" {
			http.Error(w, "missing platform header", http.StatusBadRequest)
			return
		}
		var body struct {
			JWT string `json:"jwt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.JWT == "" {
			http.Error(w, "missing jwt", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"imageToken":"img-tok","layerHandle":"layer-1"}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient()
	client.ImageBaseURL = srv.URL
	client.ReaderBaseURL = srv.URL

	creds, err := client.ExchangeImageAuth(context.Background(), 777, "signed.jwt.token")
	if err != nil {
		t.Fatalf("ExchangeImageAuth: %v", err)
	}
	if creds.ImageToken != "img-tok" || creds.LayerHandle != "layer-1" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestExchangeImageAuthRejected(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusForbidden)
			},
		},
		{
			name: "missing fields",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"imageToken":""}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			client := NewClient()
			client.ImageBaseURL = srv.URL
			client.ReaderBaseURL = srv.URL

			_, err := client.ExchangeImageAuth(context.Background(), 777, "signed.jwt.token")
			if !errors.Is(err, ErrAuthorizationRejected) {
				t.Errorf("expected ErrAuthorizationRejected, got %v", err)
			}
		})
	}
}

func TestFetchPageURL(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-PSPDFKit-Image-Token")
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	t.Cleanup(srv.Close)

	client := NewClient()
	client.ImageBaseURL = srv.URL

	creds := &ImageCredentials{ImageToken: "img-tok", LayerHandle: "layer-1"}
	data, err := client.FetchPage(context.Background(), 777, creds, 1)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(data) != 3 {
		t.Errorf("got %d bytes", len(data))
	}
	// User-facing page 1 maps to platform page index 0.
	want := "/i/d/bsmart-P-S-777/h/layer-1/page-0-dimensions-1600-2262-tile-0-0-1600-2262"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotToken != "img-tok" {
		t.Errorf("image token header = %q", gotToken)
	}
}
