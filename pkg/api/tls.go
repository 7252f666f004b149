package api

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
)

func certPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("client ca %s has no certificates", path)
	}
	return pool, nil
}

// ServerTLSConfig loads the serving pair. A non-empty clientCA turns on
// mandatory client certificates signed by that CA.
func ServerTLSConfig(certFile, keyFile, clientCA string) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load cert/key: %w", err)
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{pair}}
	if clientCA == "" {
		return cfg, nil
	}
	if cfg.ClientCAs, err = certPool(clientCA); err != nil {
		return nil, err
	}
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

// Serve blocks on srv using plain HTTP unless both TLS files are set.
// A graceful Shutdown returns nil.
func Serve(srv *http.Server, certFile, keyFile, clientCA string) error {
	var err error
	if certFile == "" || keyFile == "" {
		err = srv.ListenAndServe()
	} else {
		srv.TLSConfig, err = ServerTLSConfig(certFile, keyFile, clientCA)
		if err != nil {
			return err
		}
		err = srv.ListenAndServeTLS("", "")
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
