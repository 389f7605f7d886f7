package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/tracing"
)

// connect dials the server and logs in. Every failure here means the mail
// source is unreachable for this run.
func (s *IMAPService) connect(ctx context.Context) (*client.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.connect")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("server", s.cfg.Server)
	span.SetTag("port", s.cfg.Port)
	span.SetTag("tls", s.cfg.TLS)

	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var (
		c   *client.Client
		err error
	)
	if s.cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: s.cfg.Server})
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		err = mserrors.Connectivity(err, "failed to connect to "+serverAddr)
		tracing.TraceErr(span, err)
		return nil, err
	}

	loginSpan := opentracing.StartSpan("IMAPService.login", opentracing.ChildOf(span.Context()))
	loginSpan.SetTag("username", s.cfg.Username)

	c.Timeout = commandTimeout
	if err = c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		_ = c.Logout()
		err = mserrors.Connectivity(err, "failed to login as "+s.cfg.Username)
		tracing.TraceErr(loginSpan, err)
		loginSpan.Finish()
		return nil, err
	}
	loginSpan.Finish()
	c.Timeout = 0

	s.log.Infof("Connected to %s as %s", serverAddr, s.cfg.Username)
	return c, nil
}

// disconnect logs out, giving up after logoutTimeout.
func (s *IMAPService) disconnect(c *client.Client) {
	if c == nil {
		return
	}

	c.Timeout = logoutTimeout
	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warnf("Error during IMAP logout: %v", err)
		}
	case <-time.After(logoutTimeout):
		s.log.Warn("IMAP logout timed out")
		_ = c.Terminate()
	}
}
