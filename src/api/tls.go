package api

import (
	"crypto/tls"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stake-plus/postoracle/src/logging"
)

const tlsCheckInterval = 5 * time.Minute

// TLSReloader serves the current certificate pair and reloads it when either file changes.
type TLSReloader struct {
	certFile    string
	keyFile     string
	cert        *tls.Certificate
	mu          sync.RWMutex
	lastModCert time.Time
	lastModKey  time.Time
	logger      *log.Logger
	stop        chan struct{}
	once        sync.Once
}

func NewTLSReloader(certFile, keyFile string, logger *log.Logger) (*TLSReloader, error) {
	r := &TLSReloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logging.OrDiscard(logger),
		stop:     make(chan struct{}),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	go r.watchFiles(tlsCheckInterval)
	return r, nil
}

func (r *TLSReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cert = &cert
	if info, err := os.Stat(r.certFile); err == nil {
		r.lastModCert = info.ModTime()
	}
	if info, err := os.Stat(r.keyFile); err == nil {
		r.lastModKey = info.ModTime()
	}
	r.logger.Printf("TLS certificates loaded from %s", r.certFile)
	return nil
}

// changed reports whether either file is newer than the loaded pair.
func (r *TLSReloader) changed() (bool, error) {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false, err
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.lastModCert) || keyInfo.ModTime().After(r.lastModKey), nil
}

func (r *TLSReloader) watchFiles(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
		changed, err := r.changed()
		if err != nil {
			r.logger.Printf("stat certificate files: %v", err)
			continue
		}
		if changed {
			if err := r.reload(); err != nil {
				r.logger.Printf("reload certificates: %v", err)
			}
		}
	}
}

func (r *TLSReloader) Stop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *TLSReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

func (r *TLSReloader) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}
}
