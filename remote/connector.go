// Package remote implements the remote-execution channel to ensemble
// nodes over SSH.
package remote

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zkfleet/zkfleet/common"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Options struct {
	Port       int
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	// KnownHostsFile enables host key verification. When empty every
	// host key is accepted.
	KnownHostsFile string
	Commands       Commands
	Logger         *log.Logger
}

// Connector is the implementation of common.Connector over SSH.
type Connector struct {
	opts      Options
	templates templates
	hostKeys  ssh.HostKeyCallback
	logger    *log.Logger
}

var _ common.Connector = &Connector{}

func NewConnector(opts Options) (*Connector, error) {
	compiled, err := opts.Commands.compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	hostKeys := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		if hostKeys, err = knownhosts.New(opts.KnownHostsFile); err != nil {
			return nil, fmt.Errorf("%w: known hosts: %v", common.ErrConfiguration, err)
		}
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Remote] ", log.LstdFlags)
	}
	return &Connector{
		opts:      opts,
		templates: compiled,
		hostKeys:  hostKeys,
		logger:    logger,
	}, nil
}

// Connect takes care of automatically re-trying on transient failures.
// Authentication failures are not retried.
func (c *Connector) Connect(ctx context.Context, record common.ServerRecord) (common.Channel, error) {
	config := &ssh.ClientConfig{
		User: record.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(record.Secret),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = record.Secret
				}
				return answers, nil
			}),
		},
		HostKeyCallback: c.hostKeys,
		Timeout:         c.opts.Timeout,
	}
	addr := net.JoinHostPort(record.Host, strconv.Itoa(c.opts.Port))

	var err error
	for i := 0; i < c.opts.Retries; i++ {
		if i > 0 {
			// retry with a fixed delay
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %v", common.ErrConnectFailed, record.Host, ctx.Err())
			case <-time.After(c.opts.RetryDelay):
			}
		}
		var client *ssh.Client
		if client, err = c.dial(ctx, addr, config); err == nil {
			c.logger.Printf("connected to %s@%s", record.User, addr)
			return &sshChannel{
				record:    record,
				client:    client,
				templates: c.templates,
				logger:    c.logger,
			}, nil
		}
		c.logger.Printf("connecting to %s (attempt %d/%d): %v", addr, i+1, c.opts.Retries, err)
		if strings.Contains(err.Error(), "unable to authenticate") {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", common.ErrConnectFailed, record.Host, err)
}

func (c *Connector) dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if c.opts.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.opts.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	// the handshake deadline must not limit the session itself
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}
