// Package acme obtains and renews TLS certificates over ACME HTTP-01.
// Challenge responses are published through the registry so the edge proxy
// can serve them; issued certificates land on disk next to a registry record.
package acme

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// Registry is the slice of the registry the ACME client uses.
type Registry interface {
	SetCertificate(ctx context.Context, cert *core.Certificate) error
	SetACMEChallenge(ctx context.Context, token, keyAuth string) error
	DeleteACMEChallenge(ctx context.Context, token string) error
}

// User carries the ACME account state lego needs.
type User struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *User) GetEmail() string                        { return u.email }
func (u *User) GetRegistration() *registration.Resource { return u.registration }
func (u *User) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Client issues certificates for single domains against Let's Encrypt
// (or its staging directory). Start must be called before ObtainCertificate.
type Client struct {
	registry  Registry
	log       *logging.Logger
	email     string
	certsPath string
	staging   bool
	directory string

	mu   sync.Mutex
	user *User
	lego *lego.Client
}

// New creates a Client. The account is not touched until Start.
func New(reg Registry, log *logging.Logger, email, certsPath string, staging bool) *Client {
	directory := lego.LEDirectoryProduction
	if staging {
		directory = lego.LEDirectoryStaging
	}
	return &Client{
		registry:  reg,
		log:       log,
		email:     email,
		certsPath: certsPath,
		staging:   staging,
		directory: directory,
	}
}

// Start loads or creates the account key, registers the account with the
// directory and wires the HTTP-01 provider. Registration is idempotent:
// the directory returns the existing account when the key is already known.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(c.certsPath, "accounts"), 0o700); err != nil {
		return fmt.Errorf("create certs directory: %w", err)
	}
	key, err := loadOrCreateAccountKey(c.log, filepath.Join(c.certsPath, "accounts", "account.key"))
	if err != nil {
		return err
	}
	c.user = &User{email: c.email, key: key}

	cfg := lego.NewConfig(c.user)
	cfg.CADirURL = c.directory
	cfg.Certificate.KeyType = certcrypto.RSA2048

	client, err := lego.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create acme client: %w", err)
	}
	if err := client.Challenge.SetHTTP01Provider(NewHTTP01Provider(c.registry, c.log)); err != nil {
		return fmt.Errorf("set http-01 provider: %w", err)
	}
	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return fmt.Errorf("register acme account: %w", err)
	}
	c.user.registration = reg
	c.lego = client
	c.log.Info("acme client started", "staging", c.staging, "email", c.email)
	return nil
}

// ObtainCertificate runs a full order for one domain, writes the bundle and
// key under the certs path and upserts the certificate record.
func (c *Client) ObtainCertificate(ctx context.Context, domain string) (*core.Certificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lego == nil {
		return nil, core.Errorf(core.KindRuntimeError, "acme client not started")
	}
	c.log.Info("requesting certificate", "domain", domain)

	res, err := c.lego.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.Wrap(core.KindACMETimeout, err, "obtain certificate for "+domain)
		}
		return nil, core.Wrap(core.KindACMEOrderInvalid, err, "obtain certificate for "+domain)
	}

	certPath := filepath.Join(c.certsPath, domain+".crt")
	keyPath := filepath.Join(c.certsPath, domain+".key")
	if err := os.WriteFile(certPath, res.Certificate, 0o600); err != nil {
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, res.PrivateKey, 0o600); err != nil {
		return nil, fmt.Errorf("write certificate key: %w", err)
	}

	expires, err := leafExpiry(res.Certificate)
	if err != nil {
		return nil, err
	}
	cert := &core.Certificate{
		Domain:    domain,
		CertPath:  certPath,
		KeyPath:   keyPath,
		ExpiresAt: expires,
		AutoRenew: true,
	}
	if err := c.registry.SetCertificate(ctx, cert); err != nil {
		return nil, err
	}
	c.log.Info("certificate obtained", "domain", domain, "expires", expires)
	return cert, nil
}

// loadOrCreateAccountKey reads the PEM account key, generating an RSA-2048
// key on first run.
func loadOrCreateAccountKey(log *logging.Logger, path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, core.Errorf(core.KindRuntimeError, "account key %s holds no PEM data", path)
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse account key: %w", err)
		}
		log.Info("account key loaded", "path", path)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read account key: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode account key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write account key: %w", err)
	}
	log.Info("account key created", "path", path)
	return key, nil
}

// leafExpiry parses the first certificate in a PEM bundle and returns its
// NotAfter. Bundled responses put the leaf first.
func leafExpiry(certPEM []byte) (time.Time, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return time.Time{}, core.Errorf(core.KindRuntimeError, "certificate holds no PEM data")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse certificate: %w", err)
	}
	return leaf.NotAfter, nil
}
