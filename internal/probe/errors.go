package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/selimozcann/redirectvalidator/internal/model"
)

// Classify maps a transport error to a failure Reason. parent is the scan
// context: its cancellation is reported as ReasonCanceled rather than a
// timeout.
func Classify(parent context.Context, err error) model.Reason {
	if err == nil {
		return model.ReasonNone
	}
	if parent != nil && parent.Err() != nil {
		return model.ReasonCanceled
	}

	var (
		dnsErr     *net.DNSError
		netErr     net.Error
		opErr      *net.OpError
		certErr    *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.ReasonTimeout
	case errors.As(err, &dnsErr):
		return model.ReasonDNS
	case errors.As(err, &certErr), errors.As(err, &recordErr),
		errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return model.ReasonTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return model.ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return model.ReasonConnect
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return model.ReasonReset
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return model.ReasonConnect
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "invalid"),
		strings.Contains(msg, "unsupported protocol scheme"):
		return model.ReasonMalformed
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "server closed"):
		return model.ReasonReset
	case strings.Contains(msg, "tls"), strings.Contains(msg, "certificate"):
		return model.ReasonTLS
	}
	return model.ReasonUnknown
}
